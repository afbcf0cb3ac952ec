// Package embed defines the embedding provider interface and adapters.
package embed

import (
	"context"
	"strings"
)

// Embedder turns text into fixed-dimension vectors.
//
// Implementations must return one vector per input text, in input order.
type Embedder interface {
	// Embed generates vector embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Casefold lowercases text for embedding. Embedding models we target score
// case variants of the same phrase differently, so both indexed chunks and
// questions are casefolded before vectorization. The original text is kept
// for storage and display.
func Casefold(text string) string {
	return strings.ToLower(text)
}
