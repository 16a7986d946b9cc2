package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const orphanLedgerKey = "docflow:orphans"

// RedisOrphanLedger keeps orphaned blob references in a single Redis hash
// keyed by bucket/key so Record is idempotent per blob.
type RedisOrphanLedger struct {
	client goredis.Cmdable
}

// NewRedisOrphanLedger creates a ledger on an existing client.
func NewRedisOrphanLedger(client goredis.Cmdable) *RedisOrphanLedger {
	return &RedisOrphanLedger{client: client}
}

// Record stores o, carrying over the attempt count of an earlier entry for
// the same blob.
func (l *RedisOrphanLedger) Record(ctx context.Context, o domain.Orphan) error {
	field := objectPath(o.Bucket, o.Key)
	prev, err := l.client.HGet(ctx, orphanLedgerKey, field).Result()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return fmt.Errorf("redis: read orphan: %w", err)
	default:
		var existing domain.Orphan
		if jerr := json.Unmarshal([]byte(prev), &existing); jerr == nil {
			o.Attempts += existing.Attempts
			if o.RecordedAt.IsZero() || existing.RecordedAt.Before(o.RecordedAt) {
				o.RecordedAt = existing.RecordedAt
			}
		}
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode orphan: %w", err)
	}
	if err := l.client.HSet(ctx, orphanLedgerKey, field, payload).Err(); err != nil {
		return fmt.Errorf("redis: record orphan: %w", err)
	}
	return nil
}

// List returns up to limit orphans, oldest first. A non-positive limit
// returns all.
func (l *RedisOrphanLedger) List(ctx context.Context, limit int) ([]domain.Orphan, error) {
	all, err := l.client.HGetAll(ctx, orphanLedgerKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list orphans: %w", err)
	}
	out := make([]domain.Orphan, 0, len(all))
	for field, raw := range all {
		var o domain.Orphan
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decode orphan %s: %w", field, err)
		}
		out = append(out, o)
	}
	sortOrphans(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *RedisOrphanLedger) Resolve(ctx context.Context, bucket, key string) error {
	if err := l.client.HDel(ctx, orphanLedgerKey, objectPath(bucket, key)).Err(); err != nil {
		return fmt.Errorf("redis: resolve orphan: %w", err)
	}
	return nil
}

func (l *RedisOrphanLedger) Contains(ctx context.Context, bucket, key string) (bool, error) {
	ok, err := l.client.HExists(ctx, orphanLedgerKey, objectPath(bucket, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check orphan: %w", err)
	}
	return ok, nil
}

func sortOrphans(out []domain.Orphan) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.Before(out[j].RecordedAt)
		}
		return objectPath(out[i].Bucket, out[i].Key) < objectPath(out[j].Bucket, out[j].Key)
	})
}
