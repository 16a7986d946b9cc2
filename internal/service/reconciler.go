package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

const defaultSweepBatch = 100

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Scanned  int `json:"scanned"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// Reconciler retries the deletion of blobs recorded in the orphan ledger.
// Orphans have no catalog row, so deleting them never breaks the
// record-iff-blob invariant.
type Reconciler struct {
	objects domain.ObjectStore
	ledger  domain.OrphanLedger
	metrics *Metrics
	logger  domain.Logger
	batch   int
}

// NewReconciler creates a reconciler that handles up to batch orphans per sweep.
func NewReconciler(objects domain.ObjectStore, ledger domain.OrphanLedger, metrics *Metrics, batch int, logger domain.Logger) *Reconciler {
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	if metrics == nil {
		metrics = InitMetrics(nil)
	}
	return &Reconciler{objects: objects, ledger: ledger, metrics: metrics, logger: logger, batch: batch}
}

// Sweep deletes up to one batch of orphaned blobs. Entries whose delete
// fails stay in the ledger with their attempt count bumped.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	orphans, err := r.ledger.List(ctx, r.batch)
	if err != nil {
		return nil, fmt.Errorf("list orphans: %w", err)
	}
	report := &SweepReport{}
	for _, o := range orphans {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		err := r.objects.Delete(ctx, o.Bucket, o.Key)
		if err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
			report.Failed++
			r.logger.Warn("Orphan delete failed", "bucket", o.Bucket, "key", o.Key, "attempts", o.Attempts+1, "error", err.Error())
			retry := domain.Orphan{Bucket: o.Bucket, Key: o.Key, Reason: "sweep failed: " + err.Error(), Attempts: 1, RecordedAt: o.RecordedAt}
			if lerr := r.ledger.Record(ctx, retry); lerr != nil {
				return report, fmt.Errorf("update orphan %s/%s: %w", o.Bucket, o.Key, lerr)
			}
			continue
		}
		if err := r.ledger.Resolve(ctx, o.Bucket, o.Key); err != nil {
			return report, fmt.Errorf("resolve orphan %s/%s: %w", o.Bucket, o.Key, err)
		}
		report.Resolved++
		r.metrics.OrphansResolved.Inc()
	}
	if report.Scanned > 0 {
		r.logger.Info("Orphan sweep finished", "scanned", report.Scanned, "resolved", report.Resolved, "failed", report.Failed)
	}
	return report, nil
}

// Check reports whether the blob is flagged as orphaned.
func (r *Reconciler) Check(ctx context.Context, bucket, key string) (bool, error) {
	ok, err := r.ledger.Contains(ctx, bucket, key)
	if err != nil {
		return false, fmt.Errorf("check orphan: %w", err)
	}
	return ok, nil
}
