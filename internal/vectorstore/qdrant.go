// Package vectorstore persists chunk embeddings in a Qdrant collection over
// its REST API.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dossier-systems/dossier-ingest/internal/ingestion"
)

// Config holds Qdrant connection settings.
type Config struct {
	URL        string
	Collection string
	VectorSize int
	Timeout    time.Duration
}

// DefaultConfig returns settings for a local Qdrant instance.
func DefaultConfig() Config {
	return Config{
		URL:        "http://localhost:6333",
		Collection: "dossier_embeddings",
		VectorSize: 384,
		Timeout:    30 * time.Second,
	}
}

// QdrantClient implements ingestion.VectorStore against Qdrant's HTTP API.
type QdrantClient struct {
	baseURL    string
	collection string
	vectorSize int
	client     *http.Client
}

// NewClient creates a QdrantClient. Zero config fields fall back to defaults.
func NewClient(cfg Config) *QdrantClient {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Collection == "" {
		cfg.Collection = def.Collection
	}
	if cfg.VectorSize <= 0 {
		cfg.VectorSize = def.VectorSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &QdrantClient{
		baseURL:    cfg.URL,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// EnsureCollection creates the collection when it does not exist yet.
// Existing collections are left untouched, so a dimension change requires a
// manual migration.
func (c *QdrantClient) EnsureCollection(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/collections/%s", c.baseURL, url.PathEscape(c.collection))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		// fall through to create
	default:
		return fmt.Errorf("check collection: status %d", resp.StatusCode)
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.vectorSize,
			"distance": "Cosine",
		},
	}
	return c.do(ctx, http.MethodPut, endpoint, body)
}

// Upsert writes points by ID. Re-upserting the same IDs overwrites in place,
// which is what keeps re-processing a document idempotent.
func (c *QdrantClient) Upsert(ctx context.Context, points []ingestion.Point) error {
	if len(points) == 0 {
		return nil
	}

	endpoint := fmt.Sprintf("%s/collections/%s/points?wait=true",
		c.baseURL, url.PathEscape(c.collection))

	body := map[string]interface{}{"points": points}
	if err := c.do(ctx, http.MethodPut, endpoint, body); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteBySource removes every point whose payload carries the given
// source_type and source_id. Point IDs are derived UUIDs, so deletion goes
// through the payload filter rather than an ID prefix. Both keys are matched:
// naming series reuse document names across doctypes.
func (c *QdrantClient) DeleteBySource(ctx context.Context, sourceType, sourceID string) error {
	endpoint := fmt.Sprintf("%s/collections/%s/points/delete?wait=true",
		c.baseURL, url.PathEscape(c.collection))

	body := map[string]interface{}{
		"filter": map[string]interface{}{
			"must": []map[string]interface{}{
				{
					"key":   "source_type",
					"match": map[string]interface{}{"value": sourceType},
				},
				{
					"key":   "source_id",
					"match": map[string]interface{}{"value": sourceID},
				},
			},
		},
	}
	if err := c.do(ctx, http.MethodPost, endpoint, body); err != nil {
		return fmt.Errorf("delete points for %s/%s: %w", sourceType, sourceID, err)
	}
	return nil
}

// Ping verifies the Qdrant instance is reachable.
func (c *QdrantClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/collections", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: status %d", resp.StatusCode)
	}
	return nil
}

// do sends a JSON request and checks for a 2xx response.
func (c *QdrantClient) do(ctx context.Context, method, endpoint string, body interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, detail)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
