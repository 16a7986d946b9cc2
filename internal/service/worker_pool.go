package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs the heavy and quick scheduling classes as separate sets
// of consumer slots, each handling one job at a time.
type WorkerPool struct {
	queue  domain.JobQueue
	worker *Worker
	heavy  int
	quick  int
	logger domain.Logger
}

// NewWorkerPool sizes the heavy class to the CPU count unless heavy > 0.
func NewWorkerPool(queue domain.JobQueue, worker *Worker, heavy, quick int, logger domain.Logger) *WorkerPool {
	if heavy <= 0 {
		heavy = runtime.NumCPU()
	}
	if quick <= 0 {
		quick = 4
	}
	return &WorkerPool{queue: queue, worker: worker, heavy: heavy, quick: quick, logger: logger}
}

// Slots returns the number of heavy and quick slots.
func (p *WorkerPool) Slots() (heavy, quick int) {
	return p.heavy, p.quick
}

// Run blocks until ctx is cancelled or a slot fails.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	start := func(class string, n int, types []domain.JobType) {
		for i := 0; i < n; i++ {
			slot := fmt.Sprintf("%s-%d", class, i)
			g.Go(func() error {
				p.logger.Debug("Worker slot started", "slot", slot)
				err := p.queue.Consume(gctx, types, p.worker.Handle)
				if err == nil || errors.Is(err, context.Canceled) || gctx.Err() != nil {
					return nil
				}
				p.logger.Error("Worker slot stopped", err, "slot", slot)
				return fmt.Errorf("slot %s: %w", slot, err)
			})
		}
	}
	start("heavy", p.heavy, domain.HeavyJobTypes)
	start("quick", p.quick, domain.QuickJobTypes)
	p.logger.Info("Worker pool running", "heavy_slots", p.heavy, "quick_slots", p.quick)

	err := g.Wait()
	p.logger.Info("Worker pool stopped")
	return err
}
