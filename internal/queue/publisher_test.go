package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
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

// fakeClient is an in-memory messaging.Client that can fail the first N
// publishes.
type fakeClient struct {
	mu        sync.Mutex
	published []*messaging.Message
	failures  int
	connected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{connected: true}
}

func (c *fakeClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return errors.New("broker unavailable")
	}
	c.published = append(c.published, &messaging.Message{Subject: subject, Data: data})
	return nil
}

func (c *fakeClient) Request(ctx context.Context, subject string, data []byte, timeout time.Duration) (*messaging.Message, error) {
	return nil, errors.New("no responders")
}

func (c *fakeClient) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return nil, errors.New("not supported")
}

func (c *fakeClient) QueueSubscribe(subject, queue string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	return nil, errors.New("not supported")
}

func (c *fakeClient) Close() error      { return nil }
func (c *fakeClient) Drain() error      { return nil }
func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) messages() []*messaging.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*messaging.Message(nil), c.published...)
}

func setupPublisher(t *testing.T, client messaging.Client, cfg Config) (*Publisher, *status.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := status.NewStore(rdb, time.Hour)
	return NewPublisher(client, store, cfg, nil), store, mr
}

func testPayload() models.CanonicalPayload {
	return models.CanonicalPayload{
		SourceType: "Project",
		SourceID:   "PROJ-001",
		Action:     models.ActionUpdate,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestPublisher_Publish(t *testing.T) {
	client := newFakeClient()
	pub, store, _ := setupPublisher(t, client, Config{})
	ctx := context.Background()

	id, err := pub.Publish(ctx, testPayload())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Record persisted as pending
	msg, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, msg.Status)

	// Broadcast carries the full queue message
	published := client.messages()
	require.Len(t, published, 1)
	assert.Equal(t, messaging.SubjectDocumentChanges, published[0].Subject)

	var wire models.QueueMessage
	require.NoError(t, json.Unmarshal(published[0].Data, &wire))
	assert.Equal(t, id, wire.ID)
	assert.Equal(t, "PROJ-001", wire.Payload.SourceID)
}

func TestPublisher_PublishRetriesTransientFailure(t *testing.T) {
	client := newFakeClient()
	client.failures = 2

	pub, store, _ := setupPublisher(t, client, Config{BaseDelay: time.Millisecond})
	ctx := context.Background()

	id, err := pub.Publish(ctx, testPayload())
	require.NoError(t, err)

	msg, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, msg.Status)
	assert.Len(t, client.messages(), 1)
}

func TestPublisher_PublishExhaustsRetries(t *testing.T) {
	client := newFakeClient()
	client.failures = 100

	pub, store, mr := setupPublisher(t, client, Config{MaxAttempts: 3, BaseDelay: time.Millisecond})
	ctx := context.Background()

	_, err := pub.Publish(ctx, testPayload())
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 3, terr.Attempts)

	// The record is marked failed but keeps a zero retry count:
	// nothing was ever delivered.
	ids := recordIDs(mr)
	require.Len(t, ids, 1)

	msg, err := store.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Equal(t, 0, msg.Retries)
	assert.Contains(t, msg.LastError, "broker unavailable")
}

// recordIDs lists the message IDs persisted in the store, recovered from the
// raw keyspace. Publish does not return an ID on failure.
func recordIDs(mr *miniredis.Miniredis) []string {
	var ids []string
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "dossier:msg:") {
			ids = append(ids, strings.TrimPrefix(key, "dossier:msg:"))
		}
	}
	return ids
}

func TestPublisher_Republish(t *testing.T) {
	client := newFakeClient()
	pub, store, _ := setupPublisher(t, client, Config{})
	ctx := context.Background()

	msg := models.NewQueueMessage(testPayload())
	require.NoError(t, store.SetPending(ctx, msg))
	_, err := store.MarkProcessing(ctx, msg.ID)
	require.NoError(t, err)
	_, err = store.MarkFailed(ctx, msg.ID, "boom")
	require.NoError(t, err)

	replayed, err := pub.Republish(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, replayed.ID)
	assert.Equal(t, models.StatusPending, replayed.Status)
	assert.Equal(t, 0, replayed.Retries)

	published := client.messages()
	require.Len(t, published, 1)
	assert.Equal(t, messaging.SubjectDocumentReplays, published[0].Subject)
}

func TestPublisher_RepublishRejectsNonReplayable(t *testing.T) {
	client := newFakeClient()
	pub, store, _ := setupPublisher(t, client, Config{})
	ctx := context.Background()

	msg := models.NewQueueMessage(testPayload())
	require.NoError(t, store.SetPending(ctx, msg))

	_, err := pub.Republish(ctx, msg.ID)
	assert.ErrorIs(t, err, status.ErrTerminal)
	assert.Empty(t, client.messages())
}

