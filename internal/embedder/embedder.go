// Package embedder generates text embeddings through an OpenAI-compatible
// embedding API.
package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/dossier-systems/dossier-ingest/internal/metrics"
)

// Config holds embedding service settings.
type Config struct {
	// BaseURL is the embedding API endpoint.
	BaseURL string

	// APIKey authenticates against the API. Local OpenAI-compatible
	// services typically accept any non-empty token.
	APIKey string

	// Model is the embedding model name.
	Model string
}

// OpenAIEmbedder implements ingestion.Embedder via langchaingo.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
}

// New creates an embedder for the configured API.
func New(cfg Config) (*OpenAIEmbedder, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &OpenAIEmbedder{embedder: emb}, nil
}

// EmbedTexts generates vectors for a batch of texts. The call is idempotent
// on the same input, which makes it safe to retry at the message level.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		metrics.EmbeddingErrors.Inc()
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		metrics.EmbeddingErrors.Inc()
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}
