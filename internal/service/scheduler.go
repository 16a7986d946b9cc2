package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions and descriptors like "@every 5m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule validates a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// cronLogger adapts domain.Logger to cron's logger interface.
type cronLogger struct {
	logger domain.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, keysAndValues...)
}

// Scheduler runs periodic maintenance tasks. Overlapping runs of the same
// task are skipped and panics are recovered.
type Scheduler struct {
	cron    *cronlib.Cron
	logger  domain.Logger
	timeout time.Duration
	baseCtx context.Context
}

// NewScheduler creates a scheduler whose runs each get at most timeout.
func NewScheduler(timeout time.Duration, logger domain.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Scheduler{
		cron: cronlib.New(
			cronlib.WithParser(cronParser),
			cronlib.WithLogger(cl),
			cronlib.WithChain(cronlib.Recover(cl), cronlib.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: timeout,
		baseCtx: context.Background(),
	}
}

// Add registers fn under name on the given schedule.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	if _, err := ParseSchedule(spec); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.Error("Scheduled task failed", err, "task", name)
			return
		}
		s.logger.Debug("Scheduled task finished", "task", name, "duration", time.Since(start).String())
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	s.logger.Info("Scheduled task registered", "task", name, "schedule", spec)
	return nil
}

// Start runs the schedule in the background; runs inherit ctx's values and
// cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx = ctx
	s.cron.Start()
}

// Stop halts scheduling and waits for running tasks or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleReconciler registers a sweep of r on spec.
func ScheduleReconciler(s *Scheduler, r *Reconciler, spec string) error {
	return s.Add("orphan-sweep", spec, func(ctx context.Context) error {
		_, err := r.Sweep(ctx)
		return err
	})
}
