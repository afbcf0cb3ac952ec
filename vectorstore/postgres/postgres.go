// Package postgres provides a pgvector-backed vector store.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/siteqa/siteqa/vectorstore"
)

// Ensure Store implements the interface.
var _ vectorstore.Store = (*Store)(nil)

// Store persists chunk vectors in a Postgres table with a pgvector column.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
	logger     *slog.Logger
}

// New connects to Postgres and verifies the connection. dimensions must
// match the embedding model; the chunks table is created with that vector
// width by Init.
func New(ctx context.Context, connStr string, dimensions int, logger *slog.Logger) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &Store{pool: pool, dimensions: dimensions, logger: logger}, nil
}

// Init creates the vector extension, the chunks table, and the cosine
// index if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		page_type TEXT,
		chunk_index INT NOT NULL,
		content TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_chunks_url ON chunks(url);
	`, s.dimensions)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	s.logger.Debug("vector schema ready", "dimensions", s.dimensions)
	return nil
}

// Upsert inserts or replaces the entry for id. IDs are stable per page URL
// and chunk index, so re-ingesting a page overwrites its previous chunks.
func (s *Store) Upsert(ctx context.Context, id string, vector []float32, text string, meta vectorstore.Metadata) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	if len(vector) != s.dimensions {
		return fmt.Errorf("vector for %s has %d dimensions, want %d", id, len(vector), s.dimensions)
	}

	query := `
	INSERT INTO chunks (id, url, title, page_type, chunk_index, content, embedding, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	ON CONFLICT (id) DO UPDATE SET
		url = EXCLUDED.url,
		title = EXCLUDED.title,
		page_type = EXCLUDED.page_type,
		chunk_index = EXCLUDED.chunk_index,
		content = EXCLUDED.content,
		embedding = EXCLUDED.embedding,
		updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query,
		id, meta.URL, meta.Title, meta.PageType, meta.ChunkIndex, text, pgvector.NewVector(vector),
	)
	if err != nil {
		return fmt.Errorf("upserting chunk %s: %w", id, err)
	}
	return nil
}

// Query returns up to k matches ordered by non-increasing cosine similarity.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Match, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d", len(vector), s.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	query := `
	SELECT id, url, title, page_type, chunk_index, content,
	       1 - (embedding <=> $1) AS score
	FROM chunks
	ORDER BY embedding <=> $1
	LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var matches []vectorstore.Match
	for rows.Next() {
		var m vectorstore.Match
		if err := rows.Scan(
			&m.ID,
			&m.Metadata.URL,
			&m.Metadata.Title,
			&m.Metadata.PageType,
			&m.Metadata.ChunkIndex,
			&m.Text,
			&m.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Clear removes all stored chunks.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE chunks"); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
