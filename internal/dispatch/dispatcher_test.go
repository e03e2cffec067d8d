package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dossier-systems/dossier-ingest/internal/models"
	"github.com/dossier-systems/dossier-ingest/internal/status"
	"github.com/dossier-systems/dossier-ingest/pkg/messaging"
)

// fakeClient records queue subscriptions and lets tests push deliveries
// straight into the registered handlers.
type fakeClient struct {
	mu       sync.Mutex
	handlers map[string]messaging.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]messaging.MessageHandler)}
}

func (c *fakeClient) Publish(ctx context.Context, subject string, data []byte) error {
	return nil
}

func (c *fakeClient) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*messaging.Message, error) {
	return nil, errors.New("no responders")
}

func (c *fakeClient) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return c.QueueSubscribe(subject, "", handler)
}

func (c *fakeClient) QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[subject] = handler
	return &fakeSubscription{subject: subject}, nil
}

func (c *fakeClient) deliver(t *testing.T, subject string, msg *models.QueueMessage) error {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	c.mu.Lock()
	handler, ok := c.handlers[subject]
	c.mu.Unlock()
	require.True(t, ok, "no handler registered for %s", subject)

	return handler(context.Background(), &messaging.Message{Subject: subject, Data: data})
}

func (c *fakeClient) Close() error      { return nil }
func (c *fakeClient) Drain() error      { return nil }
func (c *fakeClient) IsConnected() bool { return true }

type fakeSubscription struct {
	subject string
}

func (s *fakeSubscription) Unsubscribe() error { return nil }
func (s *fakeSubscription) Subject() string    { return s.subject }
func (s *fakeSubscription) IsValid() bool      { return true }

func setupDispatcher(t *testing.T, cfg Config, handler Handler) (*fakeClient, *status.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := status.NewStore(rdb, time.Hour)
	client := newFakeClient()

	d := NewDispatcher(client, store, cfg, nil)
	require.NoError(t, d.Subscribe(handler))
	t.Cleanup(func() { d.Unsubscribe() })

	return client, store
}

func pendingMessage(t *testing.T, store *status.Store) *models.QueueMessage {
	t.Helper()
	msg := models.NewQueueMessage(models.CanonicalPayload{
		SourceType: "Project",
		SourceID:   "PROJ-001",
		Action:     models.ActionUpdate,
		ReceivedAt: time.Now().UTC(),
	})
	require.NoError(t, store.SetPending(context.Background(), msg))
	return msg
}

func TestDispatcher_CompletesOnSuccess(t *testing.T) {
	var handled []string
	client, store := setupDispatcher(t, Config{}, func(ctx context.Context, msg *models.QueueMessage) error {
		handled = append(handled, msg.ID)
		return nil
	})

	msg := pendingMessage(t, store)
	require.NoError(t, client.deliver(t, messaging.SubjectDocumentChanges, msg))

	assert.Equal(t, []string{msg.ID}, handled)

	got, err := store.Get(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestDispatcher_RecordsFailure(t *testing.T) {
	client, store := setupDispatcher(t, Config{MaxRetries: 3}, func(ctx context.Context, msg *models.QueueMessage) error {
		return errors.New("fetch document: timeout")
	})

	msg := pendingMessage(t, store)
	err := client.deliver(t, messaging.SubjectDocumentChanges, msg)
	require.Error(t, err)

	got, gerr := store.Get(context.Background(), msg.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 1, got.Retries)
	assert.Contains(t, got.LastError, "timeout")
}

func TestDispatcher_DeadLettersAfterRetryBudget(t *testing.T) {
	client, store := setupDispatcher(t, Config{MaxRetries: 3}, func(ctx context.Context, msg *models.QueueMessage) error {
		return errors.New("permanent failure")
	})

	msg := pendingMessage(t, store)
	ctx := context.Background()

	// Three failures stay failed
	for i := 1; i <= 3; i++ {
		_ = client.deliver(t, messaging.SubjectDocumentChanges, msg)

		got, err := store.Get(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, got.Status, "attempt %d", i)
		assert.Equal(t, i, got.Retries)
	}

	// The fourth attempt exceeds the budget
	_ = client.deliver(t, messaging.SubjectDocumentChanges, msg)

	got, err := store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeadLetter, got.Status)
	assert.Equal(t, 4, got.Retries)

	// Further deliveries are skipped silently
	require.NoError(t, client.deliver(t, messaging.SubjectDocumentChanges, msg))

	got, err = store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeadLetter, got.Status)
	assert.Equal(t, 4, got.Retries)
}

func TestDispatcher_SkipsTerminalDuplicates(t *testing.T) {
	calls := 0
	client, store := setupDispatcher(t, Config{}, func(ctx context.Context, msg *models.QueueMessage) error {
		calls++
		return nil
	})

	msg := pendingMessage(t, store)
	require.NoError(t, client.deliver(t, messaging.SubjectDocumentChanges, msg))
	require.NoError(t, client.deliver(t, messaging.SubjectDocumentChanges, msg))

	assert.Equal(t, 1, calls, "duplicate delivery of a settled message must not re-run the handler")
}

func TestDispatcher_IgnoresUnknownMessages(t *testing.T) {
	calls := 0
	client, _ := setupDispatcher(t, Config{}, func(ctx context.Context, msg *models.QueueMessage) error {
		calls++
		return nil
	})

	// Never persisted, e.g. expired from the store
	orphan := models.NewQueueMessage(models.CanonicalPayload{
		SourceType: "Project",
		SourceID:   "PROJ-999",
		Action:     models.ActionDelete,
		ReceivedAt: time.Now().UTC(),
	})

	require.NoError(t, client.deliver(t, messaging.SubjectDocumentChanges, orphan))
	assert.Zero(t, calls)
}

func TestDispatcher_RecoversHandlerPanic(t *testing.T) {
	client, store := setupDispatcher(t, Config{}, func(ctx context.Context, msg *models.QueueMessage) error {
		panic("nil map write")
	})

	msg := pendingMessage(t, store)
	err := client.deliver(t, messaging.SubjectDocumentChanges, msg)
	require.Error(t, err)

	got, gerr := store.Get(context.Background(), msg.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "handler panic")
}

func TestDispatcher_ConsumesReplaySubject(t *testing.T) {
	var handled []string
	client, store := setupDispatcher(t, Config{}, func(ctx context.Context, msg *models.QueueMessage) error {
		handled = append(handled, msg.ID)
		return nil
	})

	msg := pendingMessage(t, store)
	require.NoError(t, client.deliver(t, messaging.SubjectDocumentReplays, msg))
	assert.Equal(t, []string{msg.ID}, handled)
}
