// Package dispatch delivers queued messages to a processing callback and
// keeps the status store honest about the outcome.
//
// The dispatcher is deliberately single-purpose: bookkeeping and callback
// invocation. It never re-enqueues. Processing retries are an accounting
// concern here; actually re-driving a failed message is the replay endpoint's
// or the reconciliation job's decision.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dossier-systems/dossier-ingest/internal/metrics"
	"github.com/dossier-systems/dossier-ingest/internal/models"
	"github.com/dossier-systems/dossier-ingest/internal/status"
	"github.com/dossier-systems/dossier-ingest/pkg/logging"
	"github.com/dossier-systems/dossier-ingest/pkg/messaging"
)

// Handler processes one queue message. A non-nil error marks the message
// failed; nil marks it completed.
type Handler func(ctx context.Context, msg *models.QueueMessage) error

// Config holds dispatcher policy.
type Config struct {
	// MaxRetries bounds processing attempts per message. A message whose
	// attempt count exceeds this becomes dead_letter.
	MaxRetries int

	// Queue is the queue group name shared by all worker instances.
	Queue string
}

// DefaultConfig returns the standard processing retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Queue:      messaging.QueueIngestionWorkers,
	}
}

// Dispatcher subscribes to the delivery queue and reconciles the status store
// with each callback outcome.
type Dispatcher struct {
	client messaging.Client
	store  *status.Store
	cfg    Config
	logger *logging.Logger

	mu   sync.Mutex
	subs []messaging.Subscription
}

// NewDispatcher creates a Dispatcher. Zero config fields fall back to defaults.
func NewDispatcher(client messaging.Client, store *status.Store, cfg Config, logger *logging.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Queue == "" {
		cfg.Queue = def.Queue
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{client: client, store: store, cfg: cfg, logger: logger}
}

// Subscribe starts consuming change and replay broadcasts, invoking handler
// once per delivered message. Workers across instances share the queue group,
// so each broadcast is processed by exactly one subscriber.
func (d *Dispatcher) Subscribe(handler Handler) error {
	subjects := []string{
		messaging.SubjectDocumentChanges,
		messaging.SubjectDocumentReplays,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, subject := range subjects {
		sub, err := d.client.QueueSubscribe(subject, d.cfg.Queue, func(ctx context.Context, m *messaging.Message) error {
			return d.deliver(ctx, m, handler)
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		d.subs = append(d.subs, sub)
	}
	return nil
}

// Unsubscribe releases all subscriptions. No callback invocations begin after
// it returns.
func (d *Dispatcher) Unsubscribe() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for _, sub := range d.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.subs = nil
	return firstErr
}

// deliver runs the full bookkeeping cycle for one broadcast message.
func (d *Dispatcher) deliver(ctx context.Context, m *messaging.Message, handler Handler) error {
	var msg models.QueueMessage
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		d.logger.ErrorContext(ctx, "discarding undecodable queue message", logging.Error(err))
		return err
	}

	log := d.logger.With(
		logging.MessageID(msg.ID),
		logging.SourceType(msg.Payload.SourceType),
		logging.SourceID(msg.Payload.SourceID),
	)

	if _, err := d.store.MarkProcessing(ctx, msg.ID); err != nil {
		switch {
		case errors.Is(err, status.ErrTerminal):
			// Duplicate delivery of an already-settled message.
			log.DebugContext(ctx, "skipping terminal message")
			return nil
		case errors.Is(err, status.ErrNotFound):
			log.WarnContext(ctx, "no status record for delivered message")
			return nil
		default:
			log.ErrorContext(ctx, "failed to mark processing", logging.Error(err))
			return err
		}
	}

	start := time.Now()
	err := invoke(ctx, handler, &msg)
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		if _, serr := d.store.MarkCompleted(ctx, msg.ID); serr != nil {
			log.ErrorContext(ctx, "failed to mark completed", logging.Error(serr))
			return serr
		}
		log.InfoContext(ctx, "message completed")
		return nil
	}

	failed, serr := d.store.MarkFailed(ctx, msg.ID, err.Error())
	if serr != nil {
		log.ErrorContext(ctx, "failed to record failure", logging.Error(serr))
		return serr
	}

	if failed.Retries > d.cfg.MaxRetries {
		if _, serr := d.store.MarkDeadLetter(ctx, msg.ID); serr != nil {
			log.ErrorContext(ctx, "failed to mark dead letter", logging.Error(serr))
			return serr
		}
		log.ErrorContext(ctx, "message dead-lettered",
			logging.Retries(failed.Retries), logging.Error(err))
		return err
	}

	log.WarnContext(ctx, "message failed",
		logging.Retries(failed.Retries), logging.Error(err))
	return err
}

// invoke runs the handler with panic recovery. A callback that blows up
// inside its own error path still yields a best-effort failure record
// instead of taking down the dispatcher.
func invoke(ctx context.Context, handler Handler, msg *models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}
