package llm_test

import (
	"context"

	"github.com/knoguchi/omnirag/internal/llm"
)

// fakeClient is a hand-written in-process stand-in for llm.Client used
// across package tests in place of a generated mock.
type fakeClient struct {
	response string
	err      error
	calls    [][]llm.Message
}

func (f *fakeClient) Complete(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (string, error) {
	f.calls = append(f.calls, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeClient) Stream(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	f.calls = append(f.calls, messages)
	ch := make(chan llm.StreamChunk, 2)
	if f.err != nil {
		ch <- llm.StreamChunk{Error: f.err, Done: true}
		close(ch)
		return ch, nil
	}
	ch <- llm.StreamChunk{Token: f.response}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeClient) GenerateTitle(ctx context.Context, messages []llm.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Fake Title", nil
}

var _ llm.Client = (*fakeClient)(nil)
