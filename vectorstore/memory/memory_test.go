package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteqa/siteqa/vectorstore"
)

func TestStore_QueryOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0, 0}, "exact match", vectorstore.Metadata{URL: "https://example.com/a"}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{0.7, 0.7, 0}, "partial match", vectorstore.Metadata{URL: "https://example.com/b"}))
	require.NoError(t, s.Upsert(ctx, "c", []float32{0, 0, 1}, "orthogonal", vectorstore.Metadata{URL: "https://example.com/c"}))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
	assert.Equal(t, "c", matches[2].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)

	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Score, matches[i-1].Score)
	}
}

func TestStore_QueryLimit(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Upsert(ctx, id, []float32{1, 0}, id, vectorstore.Metadata{}))
	}

	matches, err := s.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upsert(ctx, "page-chunk-0", []float32{1, 0}, "old text", vectorstore.Metadata{}))
	require.NoError(t, s.Upsert(ctx, "page-chunk-0", []float32{1, 0}, "new text", vectorstore.Metadata{Title: "Updated"}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := s.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new text", matches[0].Text)
	assert.Equal(t, "Updated", matches[0].Metadata.Title)
}

func TestStore_EmptyCorpus(t *testing.T) {
	s := New()

	matches, err := s.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_RejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	s := New()

	assert.Error(t, s.Upsert(ctx, "", []float32{1}, "text", vectorstore.Metadata{}))
	assert.Error(t, s.Upsert(ctx, "id", nil, "text", vectorstore.Metadata{}))

	_, err := s.Query(ctx, nil, 5)
	assert.Error(t, err)
}

func TestStore_DimensionMismatchSkipped(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Upsert(ctx, "short", []float32{1, 0}, "2d", vectorstore.Metadata{}))
	require.NoError(t, s.Upsert(ctx, "long", []float32{1, 0, 0}, "3d", vectorstore.Metadata{}))

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "long", matches[0].ID)
}
