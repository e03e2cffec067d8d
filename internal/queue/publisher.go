// Package queue moves canonical payloads from the webhook boundary to the
// ingestion workers.
//
// Publishing is durable-first: the status record is written before the
// broadcast, so a message that never reaches a subscriber is still visible to
// the reconciliation job as a stale pending record. Broadcast itself is
// fire-and-forget; the status store is the source of truth.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dossier-systems/dossier-ingest/internal/metrics"
	"github.com/dossier-systems/dossier-ingest/internal/models"
	"github.com/dossier-systems/dossier-ingest/internal/status"
	"github.com/dossier-systems/dossier-ingest/pkg/logging"
	"github.com/dossier-systems/dossier-ingest/pkg/messaging"
)

// TransportError wraps a broker failure that survived all publish retries.
// Transport errors are transient: the API boundary surfaces them as 503 so
// the event source redelivers.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("queue publish failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Config holds publisher retry policy.
type Config struct {
	// Subject is the broadcast channel for canonical payloads.
	Subject string

	// MaxAttempts bounds transport-level publish attempts.
	MaxAttempts int

	// BaseDelay seeds the exponential backoff (base * 2^attempt).
	BaseDelay time.Duration
}

// DefaultConfig returns the standard transport retry policy.
func DefaultConfig() Config {
	return Config{
		Subject:     messaging.SubjectDocumentChanges,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Publisher builds queue messages, persists them, and broadcasts them.
type Publisher struct {
	client messaging.Client
	store  *status.Store
	cfg    Config
	logger *logging.Logger
}

// NewPublisher creates a Publisher. Zero config fields fall back to defaults.
func NewPublisher(client messaging.Client, store *status.Store, cfg Config, logger *logging.Logger) *Publisher {
	def := DefaultConfig()
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{client: client, store: store, cfg: cfg, logger: logger}
}

// Publish wraps the payload in a pending queue message, persists it, and
// broadcasts it with retry and exponential backoff. On exhausted retries the
// record is marked failed with the final error and a *TransportError is
// returned to the caller.
func (p *Publisher) Publish(ctx context.Context, payload models.CanonicalPayload) (string, error) {
	msg := models.NewQueueMessage(payload)

	if err := p.store.SetPending(ctx, msg); err != nil {
		return "", &TransportError{Attempts: 0, Err: err}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal queue message: %w", err)
	}

	if err := p.broadcast(ctx, p.cfg.Subject, data); err != nil {
		if _, serr := p.store.MarkPublishFailed(ctx, msg.ID, err.Error()); serr != nil {
			p.logger.ErrorContext(ctx, "failed to record publish failure",
				logging.MessageID(msg.ID), logging.Error(serr))
		}
		metrics.PublishFailures.Inc()
		return "", err
	}

	p.logger.InfoContext(ctx, "payload queued",
		logging.MessageID(msg.ID),
		logging.SourceType(payload.SourceType),
		logging.SourceID(payload.SourceID),
		logging.Action(string(payload.Action)),
	)
	return msg.ID, nil
}

// Republish re-drives a failed or dead-lettered message: resets its record to
// pending with a fresh retry budget, then broadcasts the stored payload.
func (p *Publisher) Republish(ctx context.Context, id string) (*models.QueueMessage, error) {
	msg, err := p.store.Replay(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal queue message: %w", err)
	}

	if err := p.broadcast(ctx, messaging.SubjectDocumentReplays, data); err != nil {
		if _, serr := p.store.MarkPublishFailed(ctx, msg.ID, err.Error()); serr != nil {
			p.logger.ErrorContext(ctx, "failed to record replay publish failure",
				logging.MessageID(msg.ID), logging.Error(serr))
		}
		metrics.PublishFailures.Inc()
		return nil, err
	}

	p.logger.InfoContext(ctx, "message replayed", logging.MessageID(msg.ID))
	return msg, nil
}

// broadcast publishes with exponential backoff. Backoff waits respect the
// caller's context.
func (p *Publisher) broadcast(ctx context.Context, subject string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.PublishRetries.Inc()
			delay := p.cfg.BaseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &TransportError{Attempts: attempt, Err: ctx.Err()}
			}
		}

		if lastErr = p.client.Publish(ctx, subject, data); lastErr == nil {
			return nil
		}

		p.logger.WarnContext(ctx, "queue publish attempt failed",
			logging.Error(lastErr), logging.Retries(attempt+1))
	}
	return &TransportError{Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

// Health reports broker connectivity.
func (p *Publisher) Health(ctx context.Context) messaging.HealthStatus {
	return messaging.CheckClientHealth(ctx, p.client)
}
