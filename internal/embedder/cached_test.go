package embedder_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/embedder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedderHitsCacheOnRepeat(t *testing.T) {
	fake := &fakeEmbedder{dim: 4, model: "fake-model"}
	cached, err := embedder.NewCachedEmbedder(fake, 10)
	require.NoError(t, err)

	ctx := context.Background()
	v1, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, fake.calls, 1, "second Embed call should be served from cache")
}

func TestCachedEmbedderQueryVsDocumentAreDistinctKeys(t *testing.T) {
	fake := &fakeEmbedder{dim: 4, model: "fake-model"}
	cached, err := embedder.NewCachedEmbedder(fake, 10)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "same text")
	require.NoError(t, err)
	_, err = cached.EmbedQuery(ctx, "same text")
	require.NoError(t, err)

	assert.Len(t, fake.calls, 2, "query and document embeddings must not share a cache entry")
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	fake := &fakeEmbedder{dim: 4, model: "fake-model"}
	cached, err := embedder.NewCachedEmbedder(fake, 10)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cached.Embed(ctx, "a")
	require.NoError(t, err)
	fake.calls = nil

	out, err := cached.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, []string{"b"}, fake.calls, "only the uncached text should hit the inner embedder")
}

func TestCachedEmbedderPropagatesDimensionAndModelName(t *testing.T) {
	fake := &fakeEmbedder{dim: 7, model: "fake-model"}
	cached, err := embedder.NewCachedEmbedder(fake, 10)
	require.NoError(t, err)

	assert.Equal(t, 7, cached.Dimension())
	assert.Equal(t, "fake-model", cached.ModelName())
}
