package compress_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/knoguchi/omnirag/internal/llm"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	content := messages[0].Content
	for key, resp := range f.responses {
		if strings.Contains(content, key) {
			return resp, nil
		}
	}
	return "NONE", nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) GenerateTitle(ctx context.Context, messages []llm.Message) (string, error) {
	return "", errors.New("not implemented")
}

var _ llm.Client = (*fakeLLM)(nil)
