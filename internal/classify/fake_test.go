package classify_test

import (
	"context"
	"errors"

	"github.com/knoguchi/omnirag/internal/llm"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) GenerateTitle(ctx context.Context, messages []llm.Message) (string, error) {
	return "", errors.New("not implemented")
}

var _ llm.Client = (*fakeLLM)(nil)
