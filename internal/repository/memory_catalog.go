package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

// MemoryCatalog is an in-process MetadataCatalog.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[string]*domain.DocumentRecord
	keys    map[string]string // storage_key -> id
}

// NewMemoryCatalog creates an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		records: make(map[string]*domain.DocumentRecord),
		keys:    make(map[string]string),
	}
}

func (c *MemoryCatalog) Insert(ctx context.Context, record *domain.DocumentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[record.StorageKey]; ok {
		return domain.ErrDuplicateKey
	}
	if _, ok := c.records[record.ID]; ok {
		return domain.ErrDuplicateKey
	}
	c.records[record.ID] = record.Clone()
	c.keys[record.StorageKey] = record.ID
	return nil
}

// lookup applies the single (id, owner) predicate. Caller holds the lock.
func (c *MemoryCatalog) lookup(id, ownerID string) (*domain.DocumentRecord, bool) {
	rec, ok := c.records[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, false
	}
	return rec, true
}

func (c *MemoryCatalog) Get(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.lookup(id, ownerID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (c *MemoryCatalog) Update(ctx context.Context, id, ownerID string, patch domain.MetadataPatch, now time.Time) (*domain.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.lookup(id, ownerID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	patch.Apply(rec, now)
	return rec.Clone(), nil
}

func (c *MemoryCatalog) Delete(ctx context.Context, id, ownerID string) (*domain.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.lookup(id, ownerID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(c.records, id)
	delete(c.keys, rec.StorageKey)
	return rec, nil
}

func (c *MemoryCatalog) SetTrashed(ctx context.Context, id, ownerID string, trashedAt *time.Time, now time.Time) (*domain.DocumentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.lookup(id, ownerID)
	if !ok || rec.Trashed() == (trashedAt != nil) {
		return nil, domain.ErrNotFound
	}
	if trashedAt != nil {
		t := *trashedAt
		trashedAt = &t
	}
	rec.TrashedAt = trashedAt
	rec.UpdatedAt = now
	return rec.Clone(), nil
}

func (c *MemoryCatalog) List(ctx context.Context, ownerID string, filter domain.ListFilter) (*domain.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	c.mu.RLock()
	matched := make([]*domain.DocumentRecord, 0)
	for _, rec := range c.records {
		if rec.OwnerID == ownerID && filter.Matches(rec) {
			matched = append(matched, rec.Clone())
		}
	}
	c.mu.RUnlock()

	sortRecords(matched, filter.SortBy, filter.Desc)

	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return &domain.ListResult{Items: matched[start:end], Total: total}, nil
}

// sortRecords orders by the sort key, breaking ties on id for a stable page order.
func sortRecords(records []*domain.DocumentRecord, sortBy string, desc bool) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		var cmp int
		switch sortBy {
		case domain.SortByTitle:
			cmp = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case domain.SortBySize:
			cmp = compareInt64(a.SizeBytes, b.SizeBytes)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
