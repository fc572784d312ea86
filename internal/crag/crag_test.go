package crag_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/crag"
	"github.com/knoguchi/omnirag/internal/websearch"
	"github.com/stretchr/testify/assert"
)

func TestEvaluateFastPathCorrectSkipsLLM(t *testing.T) {
	fake := &fakeLLM{}
	c := crag.New(fake, websearch.StubProvider{})

	results := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "paris is the capital of france"}, Score: 0.05}}
	grade := c.Evaluate(context.Background(), "capital of france", results)
	assert.Equal(t, crag.Correct, grade)
	assert.Equal(t, 0, fake.calls)
}

func TestEvaluateEmptyResultsIsIncorrect(t *testing.T) {
	fake := &fakeLLM{}
	c := crag.New(fake, websearch.StubProvider{})

	grade := c.Evaluate(context.Background(), "capital of france", nil)
	assert.Equal(t, crag.Incorrect, grade)
}

func TestEvaluateLowScoreUsesLLMGrading(t *testing.T) {
	fake := &fakeLLM{response: "AMBIGUOUS"}
	c := crag.New(fake, websearch.StubProvider{})

	results := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "weak evidence"}, Score: 0.0001}}
	grade := c.Evaluate(context.Background(), "capital of france", results)
	assert.Equal(t, crag.Ambiguous, grade)
	assert.Equal(t, 1, fake.calls)
}

func TestEvaluateFallsBackToHeuristicOnParseFailure(t *testing.T) {
	fake := &fakeLLM{response: "I cannot decide"}
	c := crag.New(fake, websearch.StubProvider{}, crag.WithThresholds(0.01, 0.0005))

	results := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "weak evidence"}, Score: 0.001}}
	grade := c.Evaluate(context.Background(), "capital of france", results)
	assert.Equal(t, crag.Ambiguous, grade)
}

func TestRunCorrectKeepsOriginalDocuments(t *testing.T) {
	fake := &fakeLLM{}
	c := crag.New(fake, websearch.StubProvider{})

	results := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "paris is the capital"}, Score: 0.05}}
	outcome := c.Run(context.Background(), "capital of france", results, 3)
	assert.Equal(t, crag.Correct, outcome.Grade)
	assert.False(t, outcome.UsedWebSearch)
	assert.Equal(t, results, outcome.Documents)
}

func TestRunIncorrectReplacesWithWebResults(t *testing.T) {
	fake := &fakeLLM{response: "INCORRECT"}
	search := websearch.StubProvider{Results: []websearch.Result{{Title: "t", URL: "http://x", Snippet: "s"}}}
	c := crag.New(fake, search)

	results := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "irrelevant"}, Score: 0.0001}}
	outcome := c.Run(context.Background(), "unrelated query", results, 3)
	assert.Equal(t, crag.Incorrect, outcome.Grade)
	assert.True(t, outcome.UsedWebSearch)
	assert.Len(t, outcome.Documents, 1)
	assert.Equal(t, "http://x", outcome.Documents[0].ID)
}

func TestRunAmbiguousUnionsWithWebResults(t *testing.T) {
	fake := &fakeLLM{response: "AMBIGUOUS"}
	search := websearch.StubProvider{Results: []websearch.Result{{Title: "t", URL: "http://x", Snippet: "s"}}}
	c := crag.New(fake, search)

	results := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "partial evidence"}, Score: 0.0001}}
	outcome := c.Run(context.Background(), "partial query", results, 3)
	assert.Equal(t, crag.Ambiguous, outcome.Grade)
	assert.True(t, outcome.UsedWebSearch)
	assert.Len(t, outcome.Documents, 2)
}

func TestRunWebSearchFailureFallsBackToOriginal(t *testing.T) {
	fake := &fakeLLM{response: "INCORRECT"}
	search := websearch.StubProvider{Err: assertErr}
	c := crag.New(fake, search)

	results := []core.SearchResult{{Chunk: core.Chunk{ID: "a", Text: "irrelevant"}, Score: 0.0001}}
	outcome := c.Run(context.Background(), "unrelated query", results, 3)
	assert.False(t, outcome.UsedWebSearch)
	assert.Equal(t, results, outcome.Documents)
}

var assertErr = &testError{"search unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
