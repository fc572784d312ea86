package classify_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleClassifierSimpleQuery(t *testing.T) {
	r := classify.NewRuleClassifier()
	label, ok := r.Classify("tell me about go channels")
	require.True(t, ok)
	assert.Equal(t, classify.Simple, label)
}

func TestRuleClassifierMultiHopOnComparison(t *testing.T) {
	r := classify.NewRuleClassifier()
	label, ok := r.Classify("compare the performance of go channels versus mutexes across releases")
	require.True(t, ok)
	assert.Equal(t, classify.MultiHop, label)
}

func TestRuleClassifierAmbiguousFallsThrough(t *testing.T) {
	r := classify.NewRuleClassifier()
	_, ok := r.Classify("how does the retry backoff interact with the connection pool")
	assert.False(t, ok)
}

func TestHybridClassifierUsesRulesWithoutLLMCall(t *testing.T) {
	fake := &fakeLLM{}
	h := classify.New(fake)

	label, err := h.Classify(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, classify.Simple, label)
	assert.Equal(t, 0, fake.calls)
}

func TestHybridClassifierFallsBackToLLMOnAmbiguous(t *testing.T) {
	fake := &fakeLLM{response: "MULTI_HOP"}
	h := classify.New(fake)

	label, err := h.Classify(context.Background(), "how does the retry backoff interact with the connection pool")
	require.NoError(t, err)
	assert.Equal(t, classify.MultiHop, label)
	assert.Equal(t, 1, fake.calls)
}

func TestHybridClassifierDefaultsToSingleHopOnLLMError(t *testing.T) {
	fake := &fakeLLM{err: assertErr}
	h := classify.New(fake)

	label, err := h.Classify(context.Background(), "how does the retry backoff interact with the connection pool")
	require.NoError(t, err)
	assert.Equal(t, classify.SingleHop, label)
}

func TestHybridClassifierCachesResult(t *testing.T) {
	fake := &fakeLLM{response: "MULTI_HOP"}
	h := classify.New(fake)

	query := "how does the retry backoff interact with the connection pool"
	_, _ = h.Classify(context.Background(), query)
	_, _ = h.Classify(context.Background(), query)
	assert.Equal(t, 1, fake.calls)
}

var assertErr = &testError{"connection refused"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
