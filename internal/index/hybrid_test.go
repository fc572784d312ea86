package index_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHybridSearchFusesDenseAndSparse(t *testing.T) {
	store, err := index.Open(index.Config{
		Dense: index.DenseConfig{Dimension: 3, GraphDegree: 8, EfSearch: 20},
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	chunks := []core.Chunk{
		{ID: "a", DocumentID: "doc1", OwnerID: "owner-1", Text: "go concurrency patterns with channels", Vector: []float32{1, 0, 0}},
		{ID: "b", DocumentID: "doc1", OwnerID: "owner-1", Text: "python data science tutorial", Vector: []float32{0, 1, 0}},
		{ID: "c", DocumentID: "doc2", OwnerID: "owner-1", Text: "go channels and goroutines explained", Vector: []float32{0.9, 0.1, 0}},
	}
	require.NoError(t, store.Upsert(ctx, chunks))

	results, err := store.HybridSearch(ctx, "go channels", []float32{1, 0, 0}, "owner-1", "", "", 0.5, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID, "closest vector + matching keywords should rank first")
}

func TestHybridSearchFiltersOutOtherOwnersBeforeTopKCut(t *testing.T) {
	store, err := index.Open(index.Config{Dense: index.DenseConfig{Dimension: 3, GraphDegree: 8, EfSearch: 20}})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	chunks := []core.Chunk{
		{ID: "mine", DocumentID: "doc1", OwnerID: "owner-1", Text: "go channels explained", Vector: []float32{1, 0, 0}},
		{ID: "other-1", DocumentID: "doc2", OwnerID: "owner-2", Text: "go channels explained", Vector: []float32{1, 0, 0}},
		{ID: "other-2", DocumentID: "doc2", OwnerID: "owner-2", Text: "go channels explained", Vector: []float32{1, 0, 0}},
	}
	require.NoError(t, store.Upsert(ctx, chunks))

	results, err := store.HybridSearch(ctx, "go channels", []float32{1, 0, 0}, "owner-1", "", "", 0.5, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mine", results[0].ID)
	for _, r := range results {
		assert.Equal(t, "owner-1", r.OwnerID)
	}
}

func TestHybridSearchSessionScoping(t *testing.T) {
	store, err := index.Open(index.Config{Dense: index.DenseConfig{Dimension: 2, GraphDegree: 8, EfSearch: 20}})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	chunks := []core.Chunk{
		{ID: "global", DocumentID: "d", OwnerID: "owner-1", Text: "hello world", Vector: []float32{1, 0}},
		{ID: "session-a", DocumentID: "d", OwnerID: "owner-1", SessionID: "sess-a", Text: "hello world", Vector: []float32{1, 0}},
		{ID: "session-b", DocumentID: "d", OwnerID: "owner-1", SessionID: "sess-b", Text: "hello world", Vector: []float32{1, 0}},
	}
	require.NoError(t, store.Upsert(ctx, chunks))

	results, err := store.HybridSearch(ctx, "hello", []float32{1, 0}, "owner-1", "sess-a", "", 0.5, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"global", "session-a"}, ids, "session-scoped chunks from another session are excluded; session-less chunks pass through")
}

func TestHybridSearchDeleteRemovesResults(t *testing.T) {
	store, err := index.Open(index.Config{Dense: index.DenseConfig{Dimension: 2, GraphDegree: 8, EfSearch: 20}})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []core.Chunk{{ID: "x", DocumentID: "d", OwnerID: "owner-1", Text: "hello world", Vector: []float32{1, 0}}}))
	require.NoError(t, store.Delete(ctx, "x"))

	results, err := store.HybridSearch(ctx, "hello", []float32{1, 0}, "owner-1", "", "", 0.5, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDiversitySelectPrefersDissimilarResults(t *testing.T) {
	results := []core.SearchResult{
		{Chunk: core.Chunk{ID: "1", Vector: []float32{1, 0}}, Score: 0.9},
		{Chunk: core.Chunk{ID: "2", Vector: []float32{0.99, 0.01}}, Score: 0.85},
		{Chunk: core.Chunk{ID: "3", Vector: []float32{0, 1}}, Score: 0.5},
	}

	selected := index.DiversitySelect(results, 0.5, 2)
	require.Len(t, selected, 2)
	assert.Equal(t, "1", selected[0].ID)
	assert.Equal(t, "3", selected[1].ID, "near-duplicate of #1 should be skipped in favor of the dissimilar result")
}
