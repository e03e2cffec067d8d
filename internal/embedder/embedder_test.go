package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingServer speaks just enough of the OpenAI embeddings API.
func fakeEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), "unexpected path %s", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, len(req.Input))
		for i := range req.Input {
			data[i] = item{
				Object:    "embedding",
				Embedding: []float32{float32(i), float32(len(req.Input[i]))},
				Index:     i,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIEmbedder_EmbedTexts(t *testing.T) {
	srv := fakeEmbeddingServer(t)
	defer srv.Close()

	e, err := New(Config{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), []string{"first chunk", "second chunk text"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotEmpty(t, vectors[0])
	assert.NotEmpty(t, vectors[1])
}

func TestOpenAIEmbedder_EmptyBatch(t *testing.T) {
	e, err := New(Config{BaseURL: "http://localhost:1", Model: "test-model"})
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestOpenAIEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, fmt.Sprintf("%q", "model overloaded"), http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := New(Config{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = e.EmbedTexts(context.Background(), []string{"chunk"})
	require.Error(t, err)
}
