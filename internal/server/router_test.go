package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dossier-systems/dossier-ingest/internal/handlers"
	"github.com/dossier-systems/dossier-ingest/internal/queue"
	"github.com/dossier-systems/dossier-ingest/internal/status"
	"github.com/dossier-systems/dossier-ingest/internal/webhook"
	"github.com/dossier-systems/dossier-ingest/pkg/messaging"
)

// stubClient is a connected messaging.Client that accepts everything.
type stubClient struct{}

func (stubClient) Publish(ctx context.Context, subject string, data []byte) error { return nil }
func (stubClient) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*messaging.Message, error) {
	return &messaging.Message{}, nil
}
func (stubClient) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return nil, nil
}
func (stubClient) QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return nil, nil
}
func (stubClient) Close() error      { return nil }
func (stubClient) Drain() error      { return nil }
func (stubClient) IsConnected() bool { return true }

func setupRouter(t *testing.T) (http.Handler, *webhook.Validator) {
	t.Helper()

	mr := miniredis.RunT(t)
	store := status.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)

	validator, err := webhook.NewValidator("router-test-secret")
	require.NoError(t, err)

	publisher := queue.NewPublisher(stubClient{}, store, queue.DefaultConfig(), nil)
	handler := handlers.NewEventsHandler(validator, publisher, store, handlers.DefaultConfig(), nil)

	return NewRouter(handler, nil), validator
}

func TestRouter_EventIntake(t *testing.T) {
	router, validator := setupRouter(t)

	body := `{"doctype":"Project","name":"PROJ-001","action":"update"}`
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("X-Webhook-Signature", validator.Sign([]byte(body)))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "queued")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "request id should be echoed")
}

func TestRouter_MethodMismatch(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_StatsWithCORS(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/events/stats", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://dashboard.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RequestIDPropagated(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/events/stats", nil)
	req.Header.Set("X-Request-ID", "req-abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRouter_Metrics(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
