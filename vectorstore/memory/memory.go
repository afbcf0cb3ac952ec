// Package memory provides an in-process vector store for tests and
// single-node deployments without Postgres.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/siteqa/siteqa/vectorstore"
)

// Ensure Store implements the interface.
var _ vectorstore.Store = (*Store)(nil)

type entry struct {
	vector []float32
	text   string
	meta   vectorstore.Metadata
}

// Store is a mutex-guarded map with brute-force cosine search.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Upsert inserts or replaces the entry for id.
func (s *Store) Upsert(_ context.Context, id string, vector []float32, text string, meta vectorstore.Metadata) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for %s", id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	s.mu.Lock()
	s.entries[id] = entry{vector: vec, text: text, meta: meta}
	s.mu.Unlock()
	return nil
}

// Query returns up to k matches ordered by non-increasing cosine similarity.
// Ties break by ID so results are deterministic.
func (s *Store) Query(_ context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	matches := make([]vectorstore.Match, 0, len(s.entries))
	for id, e := range s.entries {
		if len(e.vector) != len(vector) {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:       id,
			Text:     e.text,
			Metadata: e.meta,
			Score:    cosineSimilarity(vector, e.vector),
		})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
