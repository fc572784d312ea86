package rewrite_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/rewrite"
	"github.com/stretchr/testify/assert"
)

func TestRewriteStripsKnownPrefix(t *testing.T) {
	fake := &fakeLLM{response: "Optimized Query: how does TLS handshake work\n"}
	r := rewrite.New(fake)

	out := r.Rewrite(context.Background(), "hey so how does that handshake thing work again", nil)
	assert.Equal(t, "how does TLS handshake work", out)
}

func TestRewriteKeepsFirstLineOnly(t *testing.T) {
	fake := &fakeLLM{response: "how does TLS handshake work\nsome trailing explanation"}
	r := rewrite.New(fake)

	out := r.Rewrite(context.Background(), "how does that handshake work", nil)
	assert.Equal(t, "how does TLS handshake work", out)
}

func TestRewriteFallsBackToInputOnError(t *testing.T) {
	fake := &fakeLLM{err: assertErr}
	r := rewrite.New(fake)

	out := r.Rewrite(context.Background(), "original query", nil)
	assert.Equal(t, "original query", out)
}

func TestRewriteWithHistoryIncludesTurnsInPrompt(t *testing.T) {
	fake := &fakeLLM{response: "what is the timeout for the connection pool"}
	r := rewrite.New(fake)

	history := []rewrite.Turn{{Query: "what is a connection pool", Response: "a set of reusable connections"}}
	out := r.Rewrite(context.Background(), "what is its timeout", history)
	assert.Equal(t, "what is the timeout for the connection pool", out)
	assert.Equal(t, 1, fake.calls)
}

func TestExpandReturnsExactlyFourVariants(t *testing.T) {
	fake := &fakeLLM{response: "1. first phrasing\n2. second phrasing\n3. third phrasing\n4. broader step back version"}
	r := rewrite.New(fake)

	variants := r.Expand(context.Background(), "how does TLS handshake work")
	assert.Equal(t, "first phrasing", variants[0])
	assert.Equal(t, "second phrasing", variants[1])
	assert.Equal(t, "third phrasing", variants[2])
	assert.Equal(t, "broader step back version", variants[3])
}

func TestExpandPadsWithInputOnError(t *testing.T) {
	fake := &fakeLLM{err: assertErr}
	r := rewrite.New(fake)

	variants := r.Expand(context.Background(), "original query")
	for _, v := range variants {
		assert.Equal(t, "original query", v)
	}
}

func TestExpandPadsShortResponse(t *testing.T) {
	fake := &fakeLLM{response: "only one line"}
	r := rewrite.New(fake)

	variants := r.Expand(context.Background(), "fallback query")
	assert.Equal(t, "only one line", variants[0])
	assert.Equal(t, "fallback query", variants[1])
	assert.Equal(t, "fallback query", variants[2])
	assert.Equal(t, "fallback query", variants[3])
}

var assertErr = &testError{"connection refused"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
