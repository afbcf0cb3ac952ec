// Package vectorstore defines the vector index interface used for retrieval.
package vectorstore

import "context"

// Metadata carries the citation fields stored alongside each vector.
type Metadata struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	PageType   string `json:"page_type"`
	ChunkIndex int    `json:"chunk_index"`
}

// Match is a retrieval result. Score is cosine similarity in [−1, 1],
// higher is closer.
type Match struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}

// Store is a vector index keyed by stable chunk IDs. Upserting an existing
// ID replaces the previous entry, so re-ingestion never duplicates.
type Store interface {
	// Upsert inserts or replaces the entry for id.
	Upsert(ctx context.Context, id string, vector []float32, text string, meta Metadata) error

	// Query returns up to k matches ordered by non-increasing score.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases underlying resources.
	Close() error
}
