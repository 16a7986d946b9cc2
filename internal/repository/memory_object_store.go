package repository

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

// MemoryObjectStore keeps blobs in process memory. It backs tests and the
// single-process "memory" backend.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjectStore creates an empty store.
func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func objectPath(bucket, key string) string {
	return bucket + "/" + key
}

func (s *MemoryObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	s.mu.Lock()
	defer s.mu.Unlock()
	p := objectPath(bucket, key)
	if _, ok := s.objects[p]; ok {
		return domain.ErrDuplicateKey
	}
	s.objects[p] = cp
	return nil
}

func (s *MemoryObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.objects[objectPath(bucket, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryObjectStore) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := objectPath(bucket, key)
	if _, ok := s.objects[p]; !ok {
		return domain.ErrBlobNotFound
	}
	delete(s.objects, p)
	return nil
}

func (s *MemoryObjectStore) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[objectPath(bucket, key)]
	s.mu.RUnlock()
	if !ok {
		return "", domain.ErrBlobNotFound
	}
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s/%s?expires=%d", url.PathEscape(bucket), url.PathEscape(key), expires), nil
}

// Exists reports whether a blob is present.
func (s *MemoryObjectStore) Exists(bucket, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[objectPath(bucket, key)]
	return ok
}

// Len returns the number of stored blobs.
func (s *MemoryObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
