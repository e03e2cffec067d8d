// Package chunker splits document text into overlapping chunks on semantic
// boundaries, preferring paragraph breaks, then sentence breaks, then words.
package chunker

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// separators ordered by semantic priority: paragraph boundaries first,
// character-level split as last resort.
var separators = []string{
	"\n\n\n",
	"\n\n",
	". ",
	"! ",
	"? ",
	".\n",
	"!\n",
	"?\n",
	"; ",
	": ",
	", ",
	"\n",
	" ",
	"",
}

// RecursiveChunker implements ingestion.Chunker with a recursive-character
// splitter.
type RecursiveChunker struct{}

// NewRecursiveChunker creates a chunker.
func NewRecursiveChunker() *RecursiveChunker {
	return &RecursiveChunker{}
}

// Split divides text into chunks of at most chunkSize characters with the
// given overlap. Whitespace-only chunks are dropped; the remaining chunks
// keep their original order.
func (c *RecursiveChunker) Split(text string, chunkSize, overlap int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	// Short content becomes a single chunk; the splitter would only
	// shuffle whitespace.
	if len(text) <= chunkSize {
		return []string{text}, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators(separators),
	)

	raw, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(raw))
	for _, chunk := range raw {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
