package hyde_test

import (
	"context"
	"testing"

	"github.com/knoguchi/omnirag/internal/hyde"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformGeneratesAndEmbeds(t *testing.T) {
	fl := &fakeLLM{response: "A hypothetical passage about TLS handshakes."}
	fe := &fakeEmbedder{dim: 4}
	e := hyde.New(fl, fe)

	result, err := e.Transform(context.Background(), "how does TLS handshake work", hyde.Informative)
	require.NoError(t, err)
	assert.Equal(t, "how does TLS handshake work", result.OriginalQuery)
	assert.Equal(t, "A hypothetical passage about TLS handshakes.", result.HypoDoc)
	assert.Len(t, result.QueryVec, 4)
	assert.Len(t, result.HypoVec, 4)
	assert.Equal(t, 1, fl.calls)
}

func TestTransformCachesByQueryAndStyle(t *testing.T) {
	fl := &fakeLLM{response: "passage"}
	fe := &fakeEmbedder{dim: 4}
	e := hyde.New(fl, fe)

	_, err := e.Transform(context.Background(), "query", hyde.Technical)
	require.NoError(t, err)
	_, err = e.Transform(context.Background(), "query", hyde.Technical)
	require.NoError(t, err)
	assert.Equal(t, 1, fl.calls)

	_, err = e.Transform(context.Background(), "query", hyde.Conversational)
	require.NoError(t, err)
	assert.Equal(t, 2, fl.calls)
}

func TestTransformPropagatesLLMError(t *testing.T) {
	fl := &fakeLLM{err: assertErr}
	fe := &fakeEmbedder{dim: 4}
	e := hyde.New(fl, fe)

	_, err := e.Transform(context.Background(), "query", hyde.Informative)
	require.Error(t, err)
}

func TestTransformPropagatesEmbedError(t *testing.T) {
	fl := &fakeLLM{response: "passage"}
	fe := &fakeEmbedder{dim: 4, err: assertErr}
	e := hyde.New(fl, fe)

	_, err := e.Transform(context.Background(), "query", hyde.Informative)
	require.Error(t, err)
}

var assertErr = &testError{"unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
