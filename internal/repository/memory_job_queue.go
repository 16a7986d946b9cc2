package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"
)

var errQueueClosed = errors.New("job queue closed")

// MemoryJobQueue is an in-process JobQueue with the same delivery contract
// as the broker-backed one: one message per Consume iteration, requeue on
// handler error.
type MemoryJobQueue struct {
	mu      sync.Mutex
	pending map[domain.JobType][]domain.JobMessage
	wake    chan struct{}
	closed  bool
	// deliveries counts handler invocations per job id.
	deliveries map[string]int
}

// NewMemoryJobQueue creates an empty queue.
func NewMemoryJobQueue() *MemoryJobQueue {
	return &MemoryJobQueue{
		pending:    make(map[domain.JobType][]domain.JobMessage),
		wake:       make(chan struct{}),
		deliveries: make(map[string]int),
	}
}

func (q *MemoryJobQueue) Publish(ctx context.Context, msg domain.JobMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	q.pending[msg.Type] = append(q.pending[msg.Type], msg)
	q.broadcastLocked()
	return nil
}

// broadcastLocked wakes every waiting consumer. Caller holds q.mu.
func (q *MemoryJobQueue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// next pops the oldest message among types, or returns a channel to wait on.
func (q *MemoryJobQueue) next(types []domain.JobType) (domain.JobMessage, bool, <-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.JobMessage{}, false, nil, errQueueClosed
	}
	for _, t := range types {
		if msgs := q.pending[t]; len(msgs) > 0 {
			msg := msgs[0]
			q.pending[t] = msgs[1:]
			q.deliveries[msg.JobID]++
			return msg, true, nil, nil
		}
	}
	return domain.JobMessage{}, false, q.wake, nil
}

func (q *MemoryJobQueue) Consume(ctx context.Context, types []domain.JobType, handler domain.JobHandler) error {
	for {
		msg, ok, wait, err := q.next(types)
		if err != nil {
			return err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
				continue
			}
		}

		if hErr := handler(ctx, msg); hErr != nil {
			q.requeue(msg)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (q *MemoryJobQueue) requeue(msg domain.JobMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending[msg.Type] = append(q.pending[msg.Type], msg)
	q.broadcastLocked()
}

func (q *MemoryJobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.broadcastLocked()
	}
	return nil
}

// Pending returns the number of undelivered messages of type t.
func (q *MemoryJobQueue) Pending(t domain.JobType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[t])
}

// Deliveries returns how many times the job's message reached a handler.
func (q *MemoryJobQueue) Deliveries(jobID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deliveries[jobID]
}
