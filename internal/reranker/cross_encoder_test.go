package reranker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/reranker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchResults() []core.SearchResult {
	return []core.SearchResult{
		{Chunk: core.Chunk{ID: "a", Text: "cats are mammals"}, Score: 0.4, Source: "dense"},
		{Chunk: core.Chunk{ID: "b", Text: "the capital of france is paris"}, Score: 0.9, Source: "dense"},
		{Chunk: core.Chunk{ID: "c", Text: "dogs bark at strangers"}, Score: 0.5, Source: "dense"},
	}
}

func TestRerankOrdersByLLMScore(t *testing.T) {
	fake := &fakeLLM{response: `{"scores": [{"doc_index": 0, "score": 0.2}, {"doc_index": 1, "score": 0.95}, {"doc_index": 2, "score": 0.3}]}`}
	r := reranker.New(fake)

	out, err := r.Rerank(context.Background(), "what is the capital of france?", searchResults(), 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.InDelta(t, 0.95, out[0].RerankerScore, 0.001)
}

func TestRerankStripsMarkdownFences(t *testing.T) {
	fake := &fakeLLM{response: "```json\n{\"scores\": [{\"doc_index\": 0, \"score\": 0.1}, {\"doc_index\": 1, \"score\": 0.8}, {\"doc_index\": 2, \"score\": 0.2}]}\n```"}
	r := reranker.New(fake)

	out, err := r.Rerank(context.Background(), "paris", searchResults(), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
}

func TestRerankFallsBackToOriginalScoreOnParseFailure(t *testing.T) {
	fake := &fakeLLM{response: "not json at all"}
	r := reranker.New(fake)

	out, err := r.Rerank(context.Background(), "paris", searchResults(), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, res := range searchResults() {
		assert.Equal(t, res.ID, out[i].ID)
		assert.InDelta(t, res.Score, out[i].RerankerScore, 0.001)
	}
}

func TestRerankPropagatesLLMError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("connection refused")}
	r := reranker.New(fake)

	_, err := r.Rerank(context.Background(), "paris", searchResults(), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrLLM)
}

func TestRerankEmptyInput(t *testing.T) {
	fake := &fakeLLM{}
	r := reranker.New(fake)

	out, err := r.Rerank(context.Background(), "paris", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 0, fake.calls)
}
