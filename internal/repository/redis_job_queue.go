package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	goredis "github.com/redis/go-redis/v9"
)

const (
	streamPrefix   = "docflow:jobs:"
	deadLetterKey  = "docflow:jobs:dead"
	consumerGroup  = "docflow-workers"
	eventField     = "event"
	eventSource    = "docflow/coordinator"
	eventTypeBase  = "docflow.job."
	settleTimeout  = 5 * time.Second
	defaultBlock   = 2 * time.Second
	defaultIdle    = 5 * time.Minute
	defaultReclaim = 30 * time.Second
)

// RedisQueueOption configures a RedisJobQueue.
type RedisQueueOption func(*RedisJobQueue)

// WithConsumerName sets the consumer name inside the group.
func WithConsumerName(name string) RedisQueueOption {
	return func(q *RedisJobQueue) { q.consumer = name }
}

// WithBlockTimeout bounds each XREADGROUP wait.
func WithBlockTimeout(d time.Duration) RedisQueueOption {
	return func(q *RedisJobQueue) { q.block = d }
}

// WithClaimIdle sets how long a delivered message may stay unacknowledged
// without a heartbeat before another consumer takes it over.
func WithClaimIdle(d time.Duration) RedisQueueOption {
	return func(q *RedisJobQueue) {
		if d > 0 {
			q.claimIdle = d
		}
	}
}

// WithReclaimInterval sets how often a consumer looks for stale messages.
func WithReclaimInterval(d time.Duration) RedisQueueOption {
	return func(q *RedisJobQueue) {
		if d > 0 {
			q.reclaimEvery = d
		}
	}
}

// RedisJobQueue is a JobQueue on Redis Streams, one stream per job type.
// Messages are CloudEvents JSON envelopes whose data is a JobMessage.
type RedisJobQueue struct {
	client    goredis.Cmdable
	logger    domain.Logger
	consumer  string
	block     time.Duration
	claimIdle time.Duration
	// reclaimEvery spaces XAUTOCLAIM sweeps.
	reclaimEvery time.Duration

	mu     sync.Mutex
	groups map[string]bool
	closed bool
	done   chan struct{}
}

// NewRedisJobQueue creates a queue on an existing client. The caller owns
// the client lifecycle.
func NewRedisJobQueue(client goredis.Cmdable, logger domain.Logger, opts ...RedisQueueOption) *RedisJobQueue {
	q := &RedisJobQueue{
		client:       client,
		logger:       logger,
		consumer:     "worker",
		block:        defaultBlock,
		claimIdle:    defaultIdle,
		reclaimEvery: defaultReclaim,
		groups:       make(map[string]bool),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func streamKey(t domain.JobType) string {
	return streamPrefix + string(t)
}

// encodeEnvelope wraps msg in a CloudEvents envelope keyed by the job id.
func encodeEnvelope(msg domain.JobMessage) ([]byte, error) {
	evt := cloudevents.NewEvent()
	evt.SetID(msg.JobID)
	evt.SetType(eventTypeBase + string(msg.Type))
	evt.SetSource(eventSource)
	evt.SetTime(msg.SubmittedAt)
	if err := evt.SetData(cloudevents.ApplicationJSON, msg); err != nil {
		return nil, fmt.Errorf("set event data: %w", err)
	}
	return json.Marshal(evt)
}

func decodeEnvelope(raw []byte) (domain.JobMessage, error) {
	var msg domain.JobMessage
	var evt cloudevents.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return msg, fmt.Errorf("decode event: %w", err)
	}
	if !strings.HasPrefix(evt.Type(), eventTypeBase) {
		return msg, fmt.Errorf("unexpected event type %q", evt.Type())
	}
	if err := evt.DataAs(&msg); err != nil {
		return msg, fmt.Errorf("decode job message: %w", err)
	}
	if msg.JobID == "" || !msg.Type.Valid() {
		return msg, fmt.Errorf("invalid job message for event %s", evt.ID())
	}
	return msg, nil
}

func (q *RedisJobQueue) Publish(ctx context.Context, msg domain.JobMessage) error {
	if q.isClosed() {
		return errQueueClosed
	}
	payload, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	err = q.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(msg.Type),
		Values: map[string]interface{}{eventField: string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: publish job: %w", err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context, stream string) error {
	q.mu.Lock()
	ready := q.groups[stream]
	q.mu.Unlock()
	if ready {
		return nil
	}
	if err := q.client.XGroupCreateMkStream(ctx, stream, consumerGroup, "0").Err(); err != nil && !isBusyGroup(err) {
		return fmt.Errorf("redis: create consumer group on %s: %w", stream, err)
	}
	q.mu.Lock()
	q.groups[stream] = true
	q.mu.Unlock()
	return nil
}

// Consume delivers one message at a time to handler until ctx is cancelled
// or the queue is closed. Stale pending messages from dead consumers are
// reclaimed periodically; a message being handled is kept claimed by a
// heartbeat so it is never taken over while it runs.
func (q *RedisJobQueue) Consume(ctx context.Context, types []domain.JobType, handler domain.JobHandler) error {
	if len(types) == 0 {
		return fmt.Errorf("redis: consume needs at least one job type")
	}
	streams := make([]string, 0, len(types)*2)
	for _, t := range types {
		key := streamKey(t)
		if err := q.ensureGroup(ctx, key); err != nil {
			return err
		}
		streams = append(streams, key)
	}
	for range types {
		streams = append(streams, ">")
	}

	lastReclaim := time.Time{}
	for {
		if q.isClosed() {
			return errQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if time.Since(lastReclaim) >= q.reclaimEvery {
			lastReclaim = time.Now()
			if handled, err := q.reclaim(ctx, types, handler); err != nil {
				q.logger.Warn("Failed to reclaim stale jobs", "error", err.Error())
			} else if handled {
				continue
			}
		}

		res, err := q.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: q.consumer,
			Streams:  streams,
			Count:    1,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error("Failed to read job stream", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.done:
				return errQueueClosed
			case <-time.After(time.Second):
			}
			continue
		}
		for _, stream := range res {
			for _, m := range stream.Messages {
				q.deliver(ctx, stream.Stream, m, handler)
			}
		}
	}
}

// reclaim takes over at most one message per type that has been pending
// longer than claimIdle.
func (q *RedisJobQueue) reclaim(ctx context.Context, types []domain.JobType, handler domain.JobHandler) (bool, error) {
	handled := false
	for _, t := range types {
		key := streamKey(t)
		msgs, _, err := q.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   key,
			Group:    consumerGroup,
			Consumer: q.consumer,
			MinIdle:  q.claimIdle,
			Start:    "0-0",
			Count:    1,
		}).Result()
		if err != nil {
			return handled, fmt.Errorf("xautoclaim %s: %w", key, err)
		}
		for _, m := range msgs {
			q.logger.Info("Reclaimed stale job message", "stream", key, "message_id", m.ID)
			q.deliver(ctx, key, m, handler)
			handled = true
		}
	}
	return handled, nil
}

func (q *RedisJobQueue) deliver(ctx context.Context, stream string, m goredis.XMessage, handler domain.JobHandler) {
	raw, _ := m.Values[eventField].(string)
	msg, err := decodeEnvelope([]byte(raw))
	if err != nil {
		q.logger.Error("Dropping undecodable job message", err, "stream", stream, "message_id", m.ID)
		q.deadLetter(ctx, stream, m, err)
		return
	}

	stop := q.heartbeat(ctx, stream, m.ID)
	hErr := handler(ctx, msg)
	stop()
	if hErr != nil {
		q.nack(ctx, stream, m, raw)
		return
	}
	q.ack(ctx, stream, m.ID)
}

// heartbeat re-claims the pending entry for this consumer every third of
// claimIdle, which resets its idle time, until stop is called.
func (q *RedisJobQueue) heartbeat(ctx context.Context, stream, id string) (stop func()) {
	hctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		interval := q.claimIdle / 3
		if interval <= 0 {
			interval = q.claimIdle
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
				err := q.client.XClaimJustID(hctx, &goredis.XClaimArgs{
					Stream:   stream,
					Group:    consumerGroup,
					Consumer: q.consumer,
					Messages: []string{id},
				}).Err()
				if err != nil && hctx.Err() == nil {
					q.logger.Warn("Failed to extend job message claim", "stream", stream, "message_id", id, "error", err.Error())
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// settleContext outlives a cancelled consume context so ack and nack still
// reach the broker during shutdown.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (q *RedisJobQueue) ack(ctx context.Context, stream, id string) {
	sctx, cancel := settleContext(ctx)
	defer cancel()
	if err := q.client.XAck(sctx, stream, consumerGroup, id).Err(); err != nil {
		q.logger.Error("Failed to ack job message", err, "stream", stream, "message_id", id)
	}
}

// nack re-appends the payload at the tail and acks the original delivery in
// one transaction.
func (q *RedisJobQueue) nack(ctx context.Context, stream string, m goredis.XMessage, raw string) {
	sctx, cancel := settleContext(ctx)
	defer cancel()
	pipe := q.client.TxPipeline()
	pipe.XAdd(sctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{eventField: raw},
	})
	pipe.XAck(sctx, stream, consumerGroup, m.ID)
	if _, err := pipe.Exec(sctx); err != nil {
		q.logger.Error("Failed to requeue job message", err, "stream", stream, "message_id", m.ID)
	}
}

func (q *RedisJobQueue) deadLetter(ctx context.Context, stream string, m goredis.XMessage, cause error) {
	sctx, cancel := settleContext(ctx)
	defer cancel()
	values := map[string]interface{}{
		"stream":     stream,
		"message_id": m.ID,
		"error":      cause.Error(),
	}
	if raw, ok := m.Values[eventField].(string); ok {
		values[eventField] = raw
	}
	pipe := q.client.TxPipeline()
	pipe.XAdd(sctx, &goredis.XAddArgs{Stream: deadLetterKey, Values: values})
	pipe.XAck(sctx, stream, consumerGroup, m.ID)
	if _, err := pipe.Exec(sctx); err != nil {
		q.logger.Error("Failed to dead-letter job message", err, "stream", stream, "message_id", m.ID)
	}
}

func (q *RedisJobQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops consumers at their next iteration. It does not close the client.
func (q *RedisJobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
