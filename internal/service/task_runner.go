package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

// TaskRunner runs fire-and-forget work on supervised goroutines: every task
// is logged, counted, recovered from panics and awaited on shutdown.
type TaskRunner struct {
	logger  domain.Logger
	metrics *Metrics
	timeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewTaskRunner creates a runner whose tasks each get at most timeout.
func NewTaskRunner(logger domain.Logger, metrics *Metrics, timeout time.Duration) *TaskRunner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &TaskRunner{logger: logger, metrics: metrics, timeout: timeout}
}

// Go schedules fn under name. The task context is detached from ctx's
// cancellation but keeps its values. Returns false once the runner is closed.
func (r *TaskRunner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Background task rejected after shutdown", "task", name)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		err := r.run(tctx, fn)
		result := "ok"
		if err != nil {
			result = "error"
			r.logger.Error("Background task failed", err, "task", name)
		} else {
			r.logger.Debug("Background task finished", "task", name)
		}
		if r.metrics != nil {
			r.metrics.BackgroundTasks.WithLabelValues(name, result).Inc()
		}
	}()
	return true
}

func (r *TaskRunner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}

// Wait blocks until every scheduled task finished or ctx is done.
func (r *TaskRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new tasks and waits for the running ones.
func (r *TaskRunner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.Wait(ctx)
}
