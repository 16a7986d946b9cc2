package repository

import (
	"context"
	"sync"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

// MemoryJobStore is an in-process JobStatusStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	// history records every status each job has held, for polling assertions.
	history map[string][]domain.JobStatus
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:    make(map[string]*domain.Job),
		history: make(map[string][]domain.JobStatus),
	}
}

func (s *MemoryJobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return domain.ErrDuplicateKey
	}
	s.jobs[job.ID] = job.Clone()
	s.history[job.ID] = []domain.JobStatus{job.Status}
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryJobStore) UpdateStatus(ctx context.Context, job *domain.Job, from domain.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != from || (current.Status != job.Status && !from.CanTransition(job.Status)) {
		return domain.ErrInvalidTransition
	}
	s.jobs[job.ID] = job.Clone()
	if current.Status != job.Status {
		s.history[job.ID] = append(s.history[job.ID], job.Status)
	}
	return nil
}

// History returns every status the job has held, oldest first.
func (s *MemoryJobStore) History(jobID string) []domain.JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.JobStatus(nil), s.history[jobID]...)
}
