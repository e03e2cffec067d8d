package ingestion

import (
	"context"
	"errors"
)

// ErrDocumentNotFound is returned by a SourceClient when the document no
// longer exists in the source system.
var ErrDocumentNotFound = errors.New("ingestion: document not found")

// SourceClient fetches the current snapshot of a document from the external
// source system.
type SourceClient interface {
	// FetchDocument retrieves the named document, restricted to the given
	// fields when non-empty. Returns ErrDocumentNotFound for missing
	// documents.
	FetchDocument(ctx context.Context, sourceType, sourceID string, fields []string) (map[string]interface{}, error)
}

// Chunker splits text into ordered, overlapping chunks.
// Implementations must be deterministic: the same input yields the same
// chunks, which is what keeps re-processing idempotent.
type Chunker interface {
	Split(text string, chunkSize, overlap int) ([]string, error)
}

// Embedder turns a batch of texts into fixed-dimension vectors.
// Implementations must be safely retryable on the same input.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Point is one vector with its stable identity and payload.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// VectorStore persists chunk vectors keyed by stable chunk identity.
// Upsert is idempotent by point ID.
type VectorStore interface {
	Upsert(ctx context.Context, points []Point) error

	// DeleteBySource removes every point belonging to a source document.
	// Documents are identified by the (sourceType, sourceID) pair: naming
	// series in the source system reuse names across doctypes.
	DeleteBySource(ctx context.Context, sourceType, sourceID string) error
}
