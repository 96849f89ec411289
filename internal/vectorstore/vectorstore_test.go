package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSearchRanksBySimilarity(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "alice", []float64{1, 0, 0}, nil))
	require.NoError(t, s.Add(ctx, "bob", []float64{0, 1, 0}, nil))

	matches, err := s.Search(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "alice", matches[0].UserID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.0001)
}

func TestInMemoryStoreSearchRespectsTopK(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "a", []float64{1, 0}, nil))
	require.NoError(t, s.Add(ctx, "b", []float64{1, 0}, nil))
	require.NoError(t, s.Add(ctx, "c", []float64{1, 0}, nil))

	matches, err := s.Search(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestNoOpStoreDiscardsWrites(t *testing.T) {
	s := NoOpStore{}
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "alice", []float64{1}, nil))
	matches, err := s.Search(ctx, []float64{1}, 5)
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestInMemoryStoreSearchHandlesEmptyStore(t *testing.T) {
	s := NewInMemoryStore()
	matches, err := s.Search(context.Background(), []float64{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
