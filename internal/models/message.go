// Package models defines the data types that flow through the ingestion
// pipeline: canonical change payloads, queue messages, and their persisted
// status projections.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of change a source document underwent.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether the action is one of the known change kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Status is the lifecycle state of a queue message.
//
// Transitions are monotonic along pending -> processing -> completed/failed.
// A failed message may return to pending via replay until the retry budget is
// exhausted, at which point dead_letter is terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeadLetter Status = "dead_letter"
)

// AllStatuses enumerates every lifecycle state, in transition order.
// Used by the status store to aggregate counters.
var AllStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusDeadLetter,
}

// Terminal reports whether no further processing transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeadLetter
}

// CanonicalPayload is the validated, trimmed projection of an inbound change
// event. It is immutable once created.
type CanonicalPayload struct {
	SourceType string                 `json:"source_type"`
	SourceID   string                 `json:"source_id"`
	Action     Action                 `json:"action"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ReceivedAt time.Time              `json:"received_at"`
}

// QueueMessage wraps a CanonicalPayload with pipeline metadata.
type QueueMessage struct {
	ID            string           `json:"id"`
	Payload       CanonicalPayload `json:"payload"`
	EnqueuedAt    time.Time        `json:"enqueued_at"`
	Retries       int              `json:"retries"`
	Status        Status           `json:"status"`
	LastAttemptAt *time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
}

// NewQueueMessage builds a pending message for the payload. The ID embeds the
// document identity and enqueue time so reprocessing of the same logical
// document stays traceable, with a random suffix to rule out collisions.
func NewQueueMessage(payload CanonicalPayload) *QueueMessage {
	now := time.Now().UTC()
	nonce := uuid.New().String()[:8]
	id := fmt.Sprintf("%s:%s:%s:%d:%s",
		payload.SourceType, payload.SourceID, payload.Action, now.Unix(), nonce)

	return &QueueMessage{
		ID:         id,
		Payload:    payload,
		EnqueuedAt: now,
		Retries:    0,
		Status:     StatusPending,
	}
}

// QueueStats holds per-status message counts, derived from the status store's
// atomic counters rather than by scanning records.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	DeadLetter int64 `json:"dead_letter"`
}

// Total returns the sum across all statuses.
func (s QueueStats) Total() int64 {
	return s.Pending + s.Processing + s.Completed + s.Failed + s.DeadLetter
}
