package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dossier-systems/dossier-ingest/internal/ingestion"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DOSSIER_WEBHOOK_SECRET", "test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "test-secret", cfg.Webhook.Secret)
	assert.Equal(t, "X-Webhook-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, time.Second, cfg.Queue.BaseDelay)
	assert.Equal(t, "dossier_embeddings", cfg.Qdrant.Collection)
	assert.Equal(t, 384, cfg.Qdrant.VectorSize)
	assert.Equal(t, 1000, cfg.Ingestion.Defaults.ChunkSize)
	assert.Equal(t, 200, cfg.Ingestion.Defaults.ChunkOverlap)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_RequiresWebhookSecret(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook.secret")
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
webhook:
  secret: file-secret
queue:
  max_attempts: 5
ingestion:
  defaults:
    chunk_size: 500
    chunk_overlap: 50
  doctypes:
    Project:
      fields: [title, description]
      chunk_size: 800
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Webhook.Secret)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 500, cfg.Ingestion.Defaults.ChunkSize)

	project, ok := cfg.Ingestion.DocTypes["Project"]
	require.True(t, ok)
	assert.Equal(t, []string{"title", "description"}, project.Fields)
	assert.Equal(t, 800, project.ChunkSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("webhook:\n  secret: file-secret\n"), 0o644))

	t.Setenv("DOSSIER_WEBHOOK_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Webhook.Secret)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Webhook: WebhookConfig{Secret: "s"},
			Queue:   QueueConfig{MaxAttempts: 3, MaxRetries: 3},
			Ingestion: ingestion.Config{
				Defaults: ingestion.DocTypeConfig{ChunkSize: 1000, ChunkOverlap: 200},
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("overlap must be below chunk size", func(t *testing.T) {
		cfg := base()
		cfg.Ingestion.Defaults.ChunkOverlap = 1000
		assert.Error(t, cfg.Validate())
	})

	t.Run("max attempts must be positive", func(t *testing.T) {
		cfg := base()
		cfg.Queue.MaxAttempts = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("doctype override overlap must be below chunk size", func(t *testing.T) {
		cfg := base()
		cfg.Ingestion.DocTypes = map[string]ingestion.DocTypeConfig{
			"Project": {ChunkSize: 400, ChunkOverlap: 400},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Project")
	})

	t.Run("doctype override checked against inherited defaults", func(t *testing.T) {
		// Shrinking the size below the inherited default overlap is just as
		// broken as an explicit bad pair.
		cfg := base()
		cfg.Ingestion.DocTypes = map[string]ingestion.DocTypeConfig{
			"Task": {ChunkSize: 100},
		}
		assert.Error(t, cfg.Validate())
	})

	t.Run("valid doctype override", func(t *testing.T) {
		cfg := base()
		cfg.Ingestion.DocTypes = map[string]ingestion.DocTypeConfig{
			"Project": {Fields: []string{"title"}, ChunkSize: 400, ChunkOverlap: 80},
		}
		assert.NoError(t, cfg.Validate())
	})
}
