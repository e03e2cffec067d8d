package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecursiveChunker_Split(t *testing.T) {
	c := NewRecursiveChunker()

	t.Run("empty input yields no chunks", func(t *testing.T) {
		chunks, err := c.Split("", 1000, 200)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		chunks, err = c.Split("   \n  ", 1000, 200)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("short content is a single chunk", func(t *testing.T) {
		chunks, err := c.Split("A short note.", 1000, 200)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "A short note.", chunks[0])
	})

	t.Run("long content splits into bounded chunks", func(t *testing.T) {
		var sb strings.Builder
		for i := 0; i < 40; i++ {
			sb.WriteString("This sentence repeats to build a long document body. ")
		}

		chunks, err := c.Split(sb.String(), 200, 40)
		require.NoError(t, err)
		require.Greater(t, len(chunks), 1)

		for i, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), 200, "chunk %d exceeds size", i)
			assert.NotEmpty(t, strings.TrimSpace(chunk))
		}
	})

	t.Run("paragraph boundaries preferred", func(t *testing.T) {
		first := strings.Repeat("alpha ", 20)
		second := strings.Repeat("omega ", 20)
		text := strings.TrimSpace(first) + "\n\n" + strings.TrimSpace(second)

		chunks, err := c.Split(text, 130, 0)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.False(t, strings.Contains(chunks[0], "omega"))
		assert.False(t, strings.Contains(chunks[1], "alpha"))
	})

	t.Run("deterministic output", func(t *testing.T) {
		text := strings.Repeat("Deterministic splitting is required for idempotent indexing. ", 30)

		a, err := c.Split(text, 250, 50)
		require.NoError(t, err)
		b, err := c.Split(text, 250, 50)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}
