package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/llm"
	"github.com/knoguchi/omnirag/internal/memory"
	"github.com/knoguchi/omnirag/internal/service"
)

// fakeLLM is a hand-written in-process stand-in for llm.Client: Complete
// returns a fixed response (or steps through a list, one per call, then
// repeats the last entry) so a
// test can assert on how many times the pipeline actually called out.
type fakeLLM struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeLLM) Complete(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.calls
	f.calls++
	if len(f.responses) == 0 {
		return "a fine answer with plenty of words in it to pass the length floor", nil
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []llm.Message, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan llm.StreamChunk, 2)
	text := "a fine answer with plenty of words in it to pass the length floor"
	if len(f.responses) > 0 {
		text = f.responses[0]
	}
	out <- llm.StreamChunk{Token: text}
	out <- llm.StreamChunk{Done: true}
	close(out)
	return out, nil
}

func (f *fakeLLM) GenerateTitle(ctx context.Context, messages []llm.Message) (string, error) {
	return "a title", nil
}

var _ llm.Client = (*fakeLLM)(nil)

// fakeEmbedder returns a deterministic vector derived from the text's
// length, same idiom as internal/embedder's test fake.
type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text) % 7)
	}
	v[0] = float32(len(text))
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}
func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}
func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }

// fakeClassifier always returns a fixed complexity, so tests drive strategy
// selection without needing a real rule/LLM classifier.
type fakeClassifier struct {
	complexity classify.Complexity
	err        error
}

func (f *fakeClassifier) Classify(ctx context.Context, query string) (classify.Complexity, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.complexity, nil
}

var errFake = errors.New("fake failure")

// newFakeMemoryBackedPipeline builds a direct-strategy Pipeline backed by a
// real in-memory Store, for tests asserting on cross-turn memory recall.
func newFakeMemoryBackedPipeline(t *testing.T) *service.Pipeline {
	t.Helper()
	mem := memory.NewStore(50, time.Hour)
	t.Cleanup(mem.Close)
	return service.New(service.Pipeline{
		LLM:        &fakeLLM{},
		Memory:     mem,
		Classifier: &fakeClassifier{complexity: classify.Simple},
	})
}
