package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
	apperrors "github.com/Phucdanghoc/File-store-sub000/pkg/errors"
)

const (
	defaultLease        = 5 * time.Minute
	maxLeaseRetryWait   = 2 * time.Second
	leaseReleaseTimeout = 5 * time.Second
)

// Worker turns one queue delivery into at most one completed run of the job.
type Worker struct {
	coord       *PersistenceCoordinator
	jobs        domain.JobStatusStore
	executors   map[domain.JobType]Executor
	metrics     *Metrics
	logger      domain.Logger
	maxAttempts int
	lease       time.Duration
	// leaseRetryWait caps how long a delivery of a leased job is held
	// before it goes back to the queue.
	leaseRetryWait time.Duration
	now            func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLease sets how long a claim on a job lasts without renewal. The lease
// is renewed every third of that while the executor runs.
func WithLease(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lease = d
		}
	}
}

// NewWorker creates a worker. maxAttempts bounds how often a job may be
// claimed before it is failed; zero means unbounded.
func NewWorker(coord *PersistenceCoordinator, jobs domain.JobStatusStore, executors map[domain.JobType]Executor, maxAttempts int, logger domain.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		coord:          coord,
		jobs:           jobs,
		executors:      executors,
		metrics:        coord.metrics,
		logger:         logger,
		maxAttempts:    maxAttempts,
		lease:          defaultLease,
		leaseRetryWait: maxLeaseRetryWait,
		now:            coord.now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IsRetryable reports whether err is an infrastructure failure that should
// send the message back to the queue instead of failing the job.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return apperrors.IsType(err, apperrors.ErrorTypeStorage)
}

// FailureMessage renders err as "<type>: <message>".
func FailureMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Details != "" {
			return fmt.Sprintf("%s: %s (%s)", appErr.Type, appErr.Message, appErr.Details)
		}
		if appErr.Cause != nil && appErr.Type == apperrors.ErrorTypeProcessing {
			return fmt.Sprintf("%s: %s: %v", appErr.Type, appErr.Message, appErr.Cause)
		}
		return fmt.Sprintf("%s: %s", appErr.Type, appErr.Message)
	}
	return fmt.Sprintf("%s: %v", apperrors.ErrorTypeInternal, err)
}

// Handle is a domain.JobHandler. A nil return acknowledges the message; an
// error asks the queue to redeliver it.
func (w *Worker) Handle(ctx context.Context, msg domain.JobMessage) error {
	job, err := w.jobs.Get(ctx, msg.JobID, msg.OwnerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("Dropping message for unknown job", "job_id", msg.JobID, "type", msg.Type)
			return nil
		}
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}

	if job.Status.IsTerminal() {
		w.metrics.JobsSkipped.WithLabelValues(string(job.Type)).Inc()
		w.logger.Info("Skipping redelivered job", "job_id", job.ID, "status", job.Status)
		return nil
	}

	from := job.Status
	if job.HoldsLease(w.now()) {
		w.logger.Info("Job is running elsewhere, returning it to the queue", "job_id", job.ID, "lease_expires_at", job.LeaseExpiresAt)
		w.waitForLease(ctx, job)
		return fmt.Errorf("job %s: %w", job.ID, domain.ErrJobLeased)
	}
	if from == domain.JobStatusProcessing {
		discarded, err := w.coord.DiscardJobResults(ctx, job.OwnerID, job.ID)
		if err != nil {
			return fmt.Errorf("discard partial results of %s: %w", job.ID, err)
		}
		w.logger.Warn("Reclaiming interrupted job", "job_id", job.ID, "attempts", job.Attempts, "discarded", discarded)
	}

	job.MarkProcessing(w.now())
	job.ExtendLease(w.now().Add(w.lease), w.now())
	if w.maxAttempts > 0 && job.Attempts > w.maxAttempts {
		job.MarkFailed(fmt.Sprintf("%s: gave up after %d attempts", apperrors.ErrorTypeInternal, w.maxAttempts), w.now())
		return w.finish(ctx, job, from)
	}
	if err := w.jobs.UpdateStatus(ctx, job, from); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			w.logger.Warn("Job claimed elsewhere", "job_id", job.ID)
			return nil
		}
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}

	exec, ok := w.executors[job.Type]
	if !ok {
		job.MarkFailed(fmt.Sprintf("%s: no executor for job type %s", apperrors.ErrorTypeInternal, job.Type), w.now())
		return w.finish(ctx, job, domain.JobStatusProcessing)
	}

	class := "quick"
	if job.Type.Heavy() {
		class = "heavy"
	}
	w.metrics.InflightJobs.WithLabelValues(class).Inc()
	start := time.Now()
	stopRenewal := w.renewLease(ctx, job)
	outcome, execErr := exec(ctx, job)
	stopRenewal()
	w.metrics.InflightJobs.WithLabelValues(class).Dec()
	w.metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	if execErr != nil {
		if IsRetryable(execErr) || ctx.Err() != nil {
			w.metrics.JobsRequeued.WithLabelValues(string(job.Type)).Inc()
			w.logger.Warn("Job interrupted, requeueing", "job_id", job.ID, "error", execErr.Error())
			w.releaseLease(ctx, job)
			return execErr
		}
		if _, err := w.coord.DiscardJobResults(ctx, job.OwnerID, job.ID); err != nil {
			return fmt.Errorf("discard results of failed job %s: %w", job.ID, err)
		}
		job.MarkFailed(FailureMessage(execErr), w.now())
		w.logger.Info("Job failed", "job_id", job.ID, "type", job.Type, "reason", job.ErrorMessage)
		return w.finish(ctx, job, domain.JobStatusProcessing)
	}

	job.MarkCompleted(outcome.RecordIDs, outcome.Result, w.now())
	w.logger.Info("Job completed", "job_id", job.ID, "type", job.Type, "results", len(outcome.RecordIDs))
	return w.finish(ctx, job, domain.JobStatusProcessing)
}

// renewLease pushes the claim forward until the returned stop is called.
func (w *Worker) renewLease(ctx context.Context, job *domain.Job) (stop func()) {
	claimed := job.Clone()
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		interval := w.lease / 3
		if interval <= 0 {
			interval = w.lease
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				return
			case <-ticker.C:
				now := w.now()
				claimed.ExtendLease(now.Add(w.lease), now)
				if err := w.jobs.UpdateStatus(rctx, claimed, domain.JobStatusProcessing); err != nil && rctx.Err() == nil {
					w.logger.Warn("Failed to renew job lease", "job_id", claimed.ID, "error", err.Error())
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// releaseLease lets the next delivery claim the job at once. It runs on a
// detached context so it still lands during shutdown.
func (w *Worker) releaseLease(ctx context.Context, job *domain.Job) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
	defer cancel()
	job.LeaseExpiresAt = nil
	job.UpdatedAt = w.now()
	if err := w.jobs.UpdateStatus(sctx, job, domain.JobStatusProcessing); err != nil {
		w.logger.Warn("Failed to release job lease", "job_id", job.ID, "error", err.Error())
	}
}

// waitForLease holds a duplicate delivery briefly so it does not spin
// through the queue while the lease holder finishes.
func (w *Worker) waitForLease(ctx context.Context, job *domain.Job) {
	wait := job.LeaseExpiresAt.Sub(w.now())
	if wait > w.leaseRetryWait {
		wait = w.leaseRetryWait
	}
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// finish persists a terminal status. A failed write is returned so the
// message is redelivered and the guard above re-runs the job.
func (w *Worker) finish(ctx context.Context, job *domain.Job, from domain.JobStatus) error {
	if err := w.jobs.UpdateStatus(ctx, job, from); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			w.logger.Warn("Job state moved during execution", "job_id", job.ID)
			return nil
		}
		return fmt.Errorf("record %s status of %s: %w", job.Status, job.ID, err)
	}
	w.metrics.JobsFinished.WithLabelValues(string(job.Type), string(job.Status)).Inc()
	return nil
}
