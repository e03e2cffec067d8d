// Package status persists the lifecycle state of every in-flight queue
// message in Redis.
//
// Designed for multiple dispatcher instances writing concurrently. Every
// mutation is a single keyed write or an atomic increment; per-status
// counters are maintained alongside each transition so queue statistics are
// a constant-time read, never a scan.
//
// Redis key structure:
//
//	dossier:msg:{message_id}  - JSON status record (expires after TTL)
//	dossier:count:{status}    - per-status counter (same TTL policy)
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dossier-systems/dossier-ingest/internal/metrics"
	"github.com/dossier-systems/dossier-ingest/internal/models"
)

const (
	recordKeyPrefix  = "dossier:msg:"
	counterKeyPrefix = "dossier:count:"

	// DefaultTTL bounds how long a record outlives its last transition.
	DefaultTTL = 24 * time.Hour
)

var (
	// ErrNotFound is returned when no record exists for a message ID
	// (never written, or expired).
	ErrNotFound = errors.New("status: record not found")

	// ErrTerminal is returned when a transition is requested on a message
	// that already reached completed or dead_letter.
	ErrTerminal = errors.New("status: message is in a terminal state")
)

// Store reads and writes message status records.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a Store with the given record TTL.
// A zero ttl falls back to DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{redis: client, ttl: ttl}
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}

func counterKey(s models.Status) string {
	return counterKeyPrefix + string(s)
}

// SetPending persists a freshly built message with status pending.
// This is the only way a record enters the store.
func (s *Store) SetPending(ctx context.Context, msg *models.QueueMessage) error {
	msg.Status = models.StatusPending

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status record: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, recordKey(msg.ID), data, s.ttl)
	s.bumpCounter(ctx, pipe, models.StatusPending, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist pending record: %w", err)
	}
	return nil
}

// Get returns the status record for a message ID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.QueueMessage, error) {
	data, err := s.redis.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read status record: %w", err)
	}

	var msg models.QueueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal status record: %w", err)
	}
	return &msg, nil
}

// MarkProcessing transitions a message to processing and stamps the attempt
// time. Duplicate delivery of a message that is already terminal returns
// ErrTerminal so the dispatcher can skip it.
func (s *Store) MarkProcessing(ctx context.Context, id string) (*models.QueueMessage, error) {
	return s.transition(ctx, id, func(msg *models.QueueMessage) error {
		if msg.Status.Terminal() {
			return ErrTerminal
		}
		now := time.Now().UTC()
		msg.Status = models.StatusProcessing
		msg.LastAttemptAt = &now
		return nil
	})
}

// MarkCompleted transitions a processing message to completed.
func (s *Store) MarkCompleted(ctx context.Context, id string) (*models.QueueMessage, error) {
	return s.transition(ctx, id, func(msg *models.QueueMessage) error {
		if msg.Status.Terminal() {
			return ErrTerminal
		}
		msg.Status = models.StatusCompleted
		msg.LastError = ""
		return nil
	})
}

// MarkFailed records a processing failure: increments the authoritative
// attempt count, stores the error, and sets status failed. The caller decides
// whether the retry budget is exhausted.
func (s *Store) MarkFailed(ctx context.Context, id, lastError string) (*models.QueueMessage, error) {
	return s.transition(ctx, id, func(msg *models.QueueMessage) error {
		if msg.Status.Terminal() {
			return ErrTerminal
		}
		now := time.Now().UTC()
		msg.Status = models.StatusFailed
		msg.Retries++
		msg.LastError = lastError
		msg.LastAttemptAt = &now
		return nil
	})
}

// MarkPublishFailed records a transport-level failure: the message never
// reached the broker, so the attempt count is left untouched. Retries only
// counts deliveries that actually dispatched.
func (s *Store) MarkPublishFailed(ctx context.Context, id, lastError string) (*models.QueueMessage, error) {
	return s.transition(ctx, id, func(msg *models.QueueMessage) error {
		if msg.Status.Terminal() {
			return ErrTerminal
		}
		msg.Status = models.StatusFailed
		msg.LastError = lastError
		return nil
	})
}

// MarkDeadLetter transitions a failed message to the terminal dead_letter
// state. The record stays queryable until its TTL expires.
func (s *Store) MarkDeadLetter(ctx context.Context, id string) (*models.QueueMessage, error) {
	return s.transition(ctx, id, func(msg *models.QueueMessage) error {
		if msg.Status == models.StatusDeadLetter {
			return ErrTerminal
		}
		msg.Status = models.StatusDeadLetter
		return nil
	})
}

// Replay resets a failed or dead-lettered message for re-driving: retries
// back to zero, status back to pending. Returns ErrTerminal when the message
// is not in a replayable state.
func (s *Store) Replay(ctx context.Context, id string) (*models.QueueMessage, error) {
	return s.transition(ctx, id, func(msg *models.QueueMessage) error {
		if msg.Status != models.StatusFailed && msg.Status != models.StatusDeadLetter {
			return ErrTerminal
		}
		msg.Status = models.StatusPending
		msg.Retries = 0
		msg.LastError = ""
		return nil
	})
}

// transition applies mutate to the stored record and rewrites it, keeping the
// per-status counters in step. Each message's record is independent, so a
// read-mutate-write without a transaction is safe: only one dispatcher owns a
// delivery at a time.
func (s *Store) transition(ctx context.Context, id string, mutate func(*models.QueueMessage) error) (*models.QueueMessage, error) {
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := msg.Status
	if err := mutate(msg); err != nil {
		return msg, err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal status record: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, recordKey(id), data, s.ttl)
	if before != msg.Status {
		s.bumpCounter(ctx, pipe, before, -1)
		s.bumpCounter(ctx, pipe, msg.Status, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("persist status transition: %w", err)
	}
	return msg, nil
}

// bumpCounter adjusts a per-status counter and refreshes its TTL so counters
// age out on the same schedule as the records they summarize. The transition
// metric is incremented here, next to the counter, so the two cannot drift.
func (s *Store) bumpCounter(ctx context.Context, pipe redis.Pipeliner, st models.Status, delta int64) {
	key := counterKey(st)
	pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, s.ttl)
	if delta > 0 {
		metrics.StatusTransitions.WithLabelValues(string(st)).Inc()
	}
}

// Stats returns per-status message counts from the atomic counters.
func (s *Store) Stats(ctx context.Context) (models.QueueStats, error) {
	keys := make([]string, len(models.AllStatuses))
	for i, st := range models.AllStatuses {
		keys[i] = counterKey(st)
	}

	vals, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return models.QueueStats{}, fmt.Errorf("read counters: %w", err)
	}

	var stats models.QueueStats
	for i, st := range models.AllStatuses {
		var n int64
		if raw, ok := vals[i].(string); ok {
			n, _ = strconv.ParseInt(raw, 10, 64)
		}
		switch st {
		case models.StatusPending:
			stats.Pending = n
		case models.StatusProcessing:
			stats.Processing = n
		case models.StatusCompleted:
			stats.Completed = n
		case models.StatusFailed:
			stats.Failed = n
		case models.StatusDeadLetter:
			stats.DeadLetter = n
		}
	}
	return stats, nil
}

// Ping reports whether the backing Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
