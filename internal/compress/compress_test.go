package compress_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/compress"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressExtractsRelevantSpans(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{
		"doc-a": "the relevant sentence about doc-a",
		"doc-b": "NONE",
	}}
	c := compress.New(fake)

	docs := []core.SearchResult{
		{Chunk: core.Chunk{ID: "a", Text: "doc-a has some filler and one relevant sentence about doc-a"}},
		{Chunk: core.Chunk{ID: "b", Text: "doc-b is entirely irrelevant filler"}},
	}
	out, err := c.Compress(context.Background(), "query about doc-a", docs)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "the relevant sentence about doc-a", out[0].Text)
}

func TestCompressEmptyInput(t *testing.T) {
	fake := &fakeLLM{}
	c := compress.New(fake)

	out, err := c.Compress(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, 0, fake.calls)
}

func TestCompressDropsFailedDocumentsWithoutFailingCall(t *testing.T) {
	fake := &fakeLLM{err: assertErr}
	c := compress.New(fake)

	docs := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "some document"}}}
	out, err := c.Compress(context.Background(), "query", docs)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompressRunsWithBoundedConcurrency(t *testing.T) {
	fake := &fakeLLM{responses: map[string]string{}}
	c := compress.New(fake, compress.WithConcurrency(2))

	docs := make([]core.SearchResult, 10)
	for i := range docs {
		docs[i] = core.SearchResult{Chunk: core.Chunk{ID: "d", Text: "doc"}}
	}
	out, err := c.Compress(context.Background(), "query", docs)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 10, fake.calls)
}

var assertErr = &testError{"unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
