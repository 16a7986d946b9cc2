package repository

import (
	"context"
	"sync"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

// MemoryOrphanLedger is an in-process OrphanLedger.
type MemoryOrphanLedger struct {
	mu      sync.Mutex
	orphans map[string]domain.Orphan
}

// NewMemoryOrphanLedger creates an empty ledger.
func NewMemoryOrphanLedger() *MemoryOrphanLedger {
	return &MemoryOrphanLedger{orphans: make(map[string]domain.Orphan)}
}

func (l *MemoryOrphanLedger) Record(ctx context.Context, orphan domain.Orphan) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := objectPath(orphan.Bucket, orphan.Key)
	if existing, ok := l.orphans[p]; ok {
		orphan.Attempts += existing.Attempts
		orphan.RecordedAt = existing.RecordedAt
	}
	l.orphans[p] = orphan
	return nil
}

func (l *MemoryOrphanLedger) List(ctx context.Context, limit int) ([]domain.Orphan, error) {
	l.mu.Lock()
	out := make([]domain.Orphan, 0, len(l.orphans))
	for _, o := range l.orphans {
		out = append(out, o)
	}
	l.mu.Unlock()

	sortOrphans(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryOrphanLedger) Resolve(ctx context.Context, bucket, key string) error {
	l.mu.Lock()
	delete(l.orphans, objectPath(bucket, key))
	l.mu.Unlock()
	return nil
}

func (l *MemoryOrphanLedger) Contains(ctx context.Context, bucket, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.orphans[objectPath(bucket, key)]
	return ok, nil
}
