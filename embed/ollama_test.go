package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompts = append(prompts, req.Prompt)

		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e := NewOllama(OllamaConfig{BaseURL: srv.URL, Dimensions: 3})

	vecs, err := e.Embed(context.Background(), []string{"First Text", "Second TEXT"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[0])

	// Texts are casefolded on the wire.
	assert.Equal(t, []string{"first text", "second text"}, prompts)
}

func TestOllamaEmbedder_EmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllama(OllamaConfig{BaseURL: srv.URL})

	_, err := e.Embed(context.Background(), []string{"anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestOllamaEmbedder_EmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer srv.Close()

	e := NewOllama(OllamaConfig{BaseURL: srv.URL})

	_, err := e.Embed(context.Background(), []string{"anything"})
	assert.Error(t, err)
}

func TestOllamaEmbedder_Defaults(t *testing.T) {
	e := NewOllama(OllamaConfig{})
	assert.Equal(t, DefaultModel, e.ModelName())
	assert.Equal(t, DefaultDimensions, e.Dimensions())
}

func TestCasefold(t *testing.T) {
	assert.Equal(t, "what is the refund policy?", Casefold("What Is The REFUND Policy?"))
}
