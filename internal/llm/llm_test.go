package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/knoguchi/omnirag/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "s"}, llm.System("s"))
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "u"}, llm.User("u"))
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "a"}, llm.Assistant("a"))
	assert.Equal(t, llm.Message{Role: llm.RoleTool, ToolName: "search", ToolResult: "r"}, llm.Tool("search", "r"))
}

func TestFakeClientComplete(t *testing.T) {
	fake := &fakeClient{response: "hello"}
	out, err := fake.Complete(context.Background(), []llm.Message{llm.User("hi")}, llm.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Len(t, fake.calls, 1)
}

func TestFakeClientStream(t *testing.T) {
	fake := &fakeClient{response: "chunked"}
	ch, err := fake.Stream(context.Background(), []llm.Message{llm.User("hi")}, llm.GenerateOptions{})
	require.NoError(t, err)

	var tokens string
	var done bool
	for chunk := range ch {
		if chunk.Error != nil {
			t.Fatalf("unexpected error: %v", chunk.Error)
		}
		tokens += chunk.Token
		done = done || chunk.Done
	}
	assert.Equal(t, "chunked", tokens)
	assert.True(t, done)
}

func TestFakeClientCompleteError(t *testing.T) {
	fake := &fakeClient{err: errors.New("boom")}
	_, err := fake.Complete(context.Background(), []llm.Message{llm.User("hi")}, llm.GenerateOptions{})
	require.Error(t, err)
}

func TestGenerateTitle(t *testing.T) {
	fake := &fakeClient{}
	title, err := fake.GenerateTitle(context.Background(), []llm.Message{llm.User("what is RAG?")})
	require.NoError(t, err)
	assert.Equal(t, "Fake Title", title)
}
