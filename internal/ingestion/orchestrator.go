// Package ingestion turns document change messages into vector store updates.
// The orchestrator owns the fetch, normalize, chunk, embed, upsert sequence;
// the collaborators behind each step are injected as interfaces.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dossier-systems/dossier-ingest/internal/metrics"
	"github.com/dossier-systems/dossier-ingest/internal/models"
	"github.com/dossier-systems/dossier-ingest/pkg/logging"
)

// chunkNamespace is the UUIDv5 namespace for chunk point IDs. Changing it
// orphans every existing point.
var chunkNamespace = uuid.MustParse("7a9f4c2e-31d8-4b6a-9c05-e8f1d2a6b390")

// DocTypeConfig is the projection and chunking policy for one source doctype.
type DocTypeConfig struct {
	// Fields restricts which document fields are indexed. Empty means every
	// non-metadata string field.
	Fields []string `mapstructure:"fields"`

	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// Config holds orchestrator policy.
type Config struct {
	// Defaults applies to doctypes without an explicit entry in DocTypes.
	Defaults DocTypeConfig `mapstructure:"defaults"`

	// DocTypes maps a doctype name to its projection policy.
	DocTypes map[string]DocTypeConfig `mapstructure:"doctypes"`
}

// Validate rejects chunking policies the splitter cannot honor. Per-doctype
// entries are checked with their effective values, after gaps are filled from
// the defaults.
func (c Config) Validate() error {
	if c.Defaults.ChunkOverlap >= c.Defaults.ChunkSize {
		return fmt.Errorf("defaults: chunk_overlap %d must be smaller than chunk_size %d",
			c.Defaults.ChunkOverlap, c.Defaults.ChunkSize)
	}
	for name, policy := range c.DocTypes {
		size := policy.ChunkSize
		if size <= 0 {
			size = c.Defaults.ChunkSize
		}
		overlap := policy.ChunkOverlap
		if overlap <= 0 {
			overlap = c.Defaults.ChunkOverlap
		}
		if overlap >= size {
			return fmt.Errorf("doctype %q: chunk_overlap %d must be smaller than chunk_size %d",
				name, overlap, size)
		}
	}
	return nil
}

// DefaultConfig returns the standard chunking policy.
func DefaultConfig() Config {
	return Config{
		Defaults: DocTypeConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
	}
}

// Orchestrator processes one queue message end to end.
type Orchestrator struct {
	source   SourceClient
	chunker  Chunker
	embedder Embedder
	store    VectorStore
	cfg      Config
	logger   *logging.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(source SourceClient, chunker Chunker, embedder Embedder, store VectorStore, cfg Config, logger *logging.Logger) *Orchestrator {
	if cfg.Defaults.ChunkSize <= 0 {
		cfg.Defaults.ChunkSize = DefaultConfig().Defaults.ChunkSize
	}
	if cfg.Defaults.ChunkOverlap < 0 {
		cfg.Defaults.ChunkOverlap = DefaultConfig().Defaults.ChunkOverlap
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		source:   source,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process handles one delivered message. It satisfies dispatch.Handler and is
// safe to retry: chunk IDs are deterministic and the vector store upsert
// overwrites in place.
func (o *Orchestrator) Process(ctx context.Context, msg *models.QueueMessage) error {
	payload := msg.Payload
	log := o.logger.With(
		logging.MessageID(msg.ID),
		logging.SourceType(payload.SourceType),
		logging.SourceID(payload.SourceID),
		logging.Action(string(payload.Action)),
	)

	if payload.Action == models.ActionDelete {
		if err := o.store.DeleteBySource(ctx, payload.SourceType, payload.SourceID); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
		log.InfoContext(ctx, "removed document vectors")
		return nil
	}

	policy := o.policyFor(payload.SourceType)

	doc, err := o.source.FetchDocument(ctx, payload.SourceType, payload.SourceID, policy.Fields)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			// Deleted between the event and this delivery. The vectors go
			// with it.
			if derr := o.store.DeleteBySource(ctx, payload.SourceType, payload.SourceID); derr != nil {
				return fmt.Errorf("delete vectors for missing document: %w", derr)
			}
			log.WarnContext(ctx, "document gone from source, removed vectors")
			return nil
		}
		return fmt.Errorf("fetch document: %w", err)
	}

	points, err := o.buildPoints(ctx, payload, doc, policy, log)
	if err != nil {
		return err
	}

	// Drop the previous version's points first so a document that shrank
	// does not leave stale trailing chunks behind.
	if err := o.store.DeleteBySource(ctx, payload.SourceType, payload.SourceID); err != nil {
		return fmt.Errorf("clear previous vectors: %w", err)
	}

	if len(points) == 0 {
		log.WarnContext(ctx, "document has no indexable content")
		return nil
	}

	if err := o.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}

	metrics.ChunksUpserted.Add(float64(len(points)))
	log.InfoContext(ctx, "document indexed", slog.Int("chunks", len(points)))
	return nil
}

// buildPoints chunks and embeds every projected field of the document.
func (o *Orchestrator) buildPoints(ctx context.Context, payload models.CanonicalPayload, doc map[string]interface{}, policy DocTypeConfig, log *logging.Logger) ([]Point, error) {
	fields := ExtractFields(doc, policy.Fields)

	var texts []string
	var points []Point

	for _, field := range fields {
		text := NormalizeText(field.Text)
		if text == "" {
			log.WarnContext(ctx, "skipping empty field", slog.String("field", field.Name))
			continue
		}

		chunks, err := o.chunker.Split(text, policy.ChunkSize, policy.ChunkOverlap)
		if err != nil {
			return nil, fmt.Errorf("chunk field %s: %w", field.Name, err)
		}

		for i, chunk := range chunks {
			texts = append(texts, chunk)
			points = append(points, Point{
				ID: ChunkID(payload.SourceType, payload.SourceID, field.Name, i),
				Payload: map[string]interface{}{
					"source_type": payload.SourceType,
					"source_id":   payload.SourceID,
					"field_name":  field.Name,
					"chunk_index": i,
					"content":     chunk,
					"received_at": payload.ReceivedAt,
				},
			})
		}
	}

	if len(points) == 0 {
		return nil, nil
	}

	vectors, err := o.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(points) {
		return nil, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(points), len(vectors))
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}
	return points, nil
}

// policyFor resolves the projection policy for a doctype, filling gaps from
// the defaults.
func (o *Orchestrator) policyFor(sourceType string) DocTypeConfig {
	policy, ok := o.cfg.DocTypes[sourceType]
	if !ok {
		return o.cfg.Defaults
	}
	if policy.ChunkSize <= 0 {
		policy.ChunkSize = o.cfg.Defaults.ChunkSize
	}
	if policy.ChunkOverlap <= 0 {
		policy.ChunkOverlap = o.cfg.Defaults.ChunkOverlap
	}
	return policy
}

// ChunkID derives the stable point identity for one chunk. The same document
// field and position always map to the same UUID, so re-processing overwrites
// rather than duplicates. The doctype is part of the key because naming
// series reuse document names across doctypes.
func ChunkID(sourceType, sourceID, fieldName string, chunkIndex int) string {
	key := fmt.Sprintf("%s/%s/%s/%d", sourceType, sourceID, fieldName, chunkIndex)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}
