package answer_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestCritiqueParsesAllFields(t *testing.T) {
	fake := &fakeLLM{response: "Supported: yes\nRelevant: yes\nUseful: no\nConfidence: 0.62"}
	c := answer.NewCritic(fake)

	result := c.Critique(context.Background(), "query", "response", nil)
	assert.True(t, result.Supported)
	assert.True(t, result.Relevant)
	assert.False(t, result.Useful)
	assert.InDelta(t, 0.62, result.Confidence, 1e-9)
}

func TestCritiqueDefaultsConfidenceOnParseFailure(t *testing.T) {
	fake := &fakeLLM{response: "I'm not sure how to answer that."}
	c := answer.NewCritic(fake)

	result := c.Critique(context.Background(), "query", "response", nil)
	assert.Equal(t, 0.8, result.Confidence)
}

func TestCritiqueDefaultsOnLLMError(t *testing.T) {
	fake := &fakeLLM{err: assertErr}
	c := answer.NewCritic(fake)

	docs := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "doc text"}}}
	result := c.Critique(context.Background(), "query", "response", docs)
	assert.Equal(t, 0.8, result.Confidence)
	assert.True(t, result.Supported)
}

var assertErr = &testError{"unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
