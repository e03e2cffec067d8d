// Package handlers implements the HTTP API: webhook intake, status queries,
// queue statistics, replay, and health.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dossier-systems/dossier-ingest/internal/metrics"
	"github.com/dossier-systems/dossier-ingest/internal/models"
	"github.com/dossier-systems/dossier-ingest/internal/queue"
	"github.com/dossier-systems/dossier-ingest/internal/status"
	"github.com/dossier-systems/dossier-ingest/internal/webhook"
	"github.com/dossier-systems/dossier-ingest/pkg/httputil"
	"github.com/dossier-systems/dossier-ingest/pkg/logging"
)

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DocumentLister enumerates the documents of a doctype in the source system.
type DocumentLister interface {
	ListDocuments(ctx context.Context, sourceType string) ([]string, error)
}

// Config holds intake policy.
type Config struct {
	// SignatureHeader carries the HMAC signature on inbound webhooks.
	SignatureHeader string

	// MaxBodySize caps webhook payload size in bytes.
	MaxBodySize int64
}

// DefaultConfig returns the standard intake policy.
func DefaultConfig() Config {
	return Config{
		SignatureHeader: "X-Webhook-Signature",
		MaxBodySize:     1 << 20,
	}
}

// EventsHandler serves the events API.
type EventsHandler struct {
	validator *webhook.Validator
	publisher *queue.Publisher
	store     *status.Store
	cfg       Config
	logger    *logging.Logger

	// Optional downstream dependencies surfaced through health.
	source      Pinger
	vectorStore Pinger

	// Optional source client used for bulk re-indexing.
	lister DocumentLister
}

// NewEventsHandler creates the handler. Zero config fields fall back to
// defaults; source and vectorStore may be nil.
func NewEventsHandler(validator *webhook.Validator, publisher *queue.Publisher, store *status.Store, cfg Config, logger *logging.Logger) *EventsHandler {
	def := DefaultConfig()
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = def.SignatureHeader
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EventsHandler{
		validator: validator,
		publisher: publisher,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// WithDownstream registers optional dependencies reported by the health
// endpoint.
func (h *EventsHandler) WithDownstream(source, vectorStore Pinger) *EventsHandler {
	h.source = source
	h.vectorStore = vectorStore
	return h
}

// WithSourceLister registers the source client used for bulk re-indexing.
func (h *EventsHandler) WithSourceLister(l DocumentLister) *EventsHandler {
	h.lister = l
	return h
}

// HandleEvent accepts one webhook event: verifies its signature, normalizes
// the payload, and enqueues it for processing.
func (h *EventsHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		metrics.EventsTotal.WithLabelValues("read_error").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > h.cfg.MaxBodySize {
		metrics.EventsTotal.WithLabelValues("too_large").Inc()
		httputil.WriteError(w, http.StatusRequestEntityTooLarge, "payload exceeds size limit")
		return
	}
	metrics.EventBytesTotal.Add(float64(len(body)))

	if !h.validator.Verify(body, r.Header.Get(h.cfg.SignatureHeader)) {
		metrics.EventsTotal.WithLabelValues("unauthorized").Inc()
		h.logger.WarnContext(ctx, "webhook signature verification failed",
			logging.IP(httputil.GetClientIP(r)))
		httputil.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	payload, err := webhook.Normalize(body, h.logger.WithContext(ctx))
	if err != nil {
		var verr *webhook.ValidationError
		if errors.As(err, &verr) {
			metrics.EventsTotal.WithLabelValues("invalid").Inc()
			httputil.WriteError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		metrics.EventsTotal.WithLabelValues("invalid").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "malformed payload")
		return
	}

	if !webhook.ShouldProcess(payload.SourceType) {
		metrics.EventsTotal.WithLabelValues("ignored").Inc()
		h.logger.DebugContext(ctx, "ignoring system doctype event",
			logging.SourceType(payload.SourceType))
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "ignored",
			"reason": fmt.Sprintf("system doctype %q is not indexed", payload.SourceType),
		})
		return
	}

	id, err := h.publisher.Publish(ctx, *payload)
	if err != nil {
		var terr *queue.TransportError
		if errors.As(err, &terr) {
			metrics.EventsTotal.WithLabelValues("transport_error").Inc()
			h.logger.ErrorContext(ctx, "failed to enqueue event", logging.Error(err))
			httputil.WriteError(w, http.StatusServiceUnavailable, "event could not be queued, retry later")
			return
		}
		metrics.EventsTotal.WithLabelValues("error").Inc()
		h.logger.ErrorContext(ctx, "failed to enqueue event", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	metrics.EventsTotal.WithLabelValues("queued").Inc()
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "queued",
		"messageId": id,
	})
}

// HandleStatus returns the lifecycle record for one message.
func (h *EventsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "message id is required")
		return
	}

	msg, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "message not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to read message status", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, msg)
}

// HandleStats returns per-status queue counts.
func (h *EventsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read queue stats", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"counts": stats,
		"total":  stats.Total(),
	})
}

// HandleReplay re-drives a failed or dead-lettered message.
func (h *EventsHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "message id is required")
		return
	}

	msg, err := h.publisher.Republish(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrNotFound):
			httputil.WriteError(w, http.StatusNotFound, "message not found")
		case errors.Is(err, status.ErrTerminal):
			httputil.WriteError(w, http.StatusConflict, "message is not in a replayable state")
		default:
			h.logger.ErrorContext(r.Context(), "failed to replay message",
				logging.MessageID(id), logging.Error(err))
			httputil.WriteError(w, http.StatusServiceUnavailable, "replay could not be queued, retry later")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "queued",
		"messageId": msg.ID,
	})
}

// HandleReindex enqueues an update event for every document of a doctype,
// re-driving the whole type through the normal delivery pipeline. Each
// document gets its own queue message, so progress is visible per message in
// the status store.
func (h *EventsHandler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doctype := r.PathValue("doctype")
	if doctype == "" {
		httputil.WriteError(w, http.StatusBadRequest, "doctype is required")
		return
	}
	if !webhook.ShouldProcess(doctype) {
		httputil.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("system doctype %q is not indexed", doctype))
		return
	}
	if h.lister == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "source system is not configured")
		return
	}

	names, err := h.lister.ListDocuments(ctx, doctype)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to enumerate documents for re-index",
			logging.SourceType(doctype), logging.Error(err))
		httputil.WriteError(w, http.StatusBadGateway, "failed to enumerate source documents")
		return
	}

	now := time.Now().UTC()
	queued, failed := 0, 0
	for _, name := range names {
		payload := models.CanonicalPayload{
			SourceType: doctype,
			SourceID:   name,
			Action:     models.ActionUpdate,
			ReceivedAt: now,
		}
		if _, err := h.publisher.Publish(ctx, payload); err != nil {
			h.logger.ErrorContext(ctx, "failed to enqueue re-index event",
				logging.SourceType(doctype), logging.SourceID(name), logging.Error(err))
			failed++
			continue
		}
		queued++
	}

	h.logger.InfoContext(ctx, "re-index queued",
		logging.SourceType(doctype), slog.Int("queued", queued), slog.Int("failed", failed))
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "queued",
		"doctype": doctype,
		"queued":  queued,
		"failed":  failed,
	})
}

// HandleHealth reports service health as healthy or degraded, never failing
// the response outright: the intake boundary keeps accepting events while a
// dependency is down, and the status store keeps them durable for replay.
func (h *EventsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := map[string]string{}
	overall := "healthy"

	mark := func(name string, err error) {
		if err != nil {
			deps[name] = "unhealthy"
			overall = "degraded"
			h.logger.WarnContext(ctx, "dependency unhealthy",
				slog.String("dependency", name), logging.Error(err))
			return
		}
		deps[name] = "healthy"
	}

	mark("status_store", h.store.Ping(ctx))

	if broker := h.publisher.Health(ctx); broker.Connected {
		mark("queue", nil)
	} else {
		mark("queue", errors.New(broker.Error))
	}

	if h.source != nil {
		mark("source", h.source.Ping(ctx))
	}
	if h.vectorStore != nil {
		mark("vector_store", h.vectorStore.Ping(ctx))
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":       overall,
		"dependencies": deps,
	})
}
