package embedder_test

import (
	"context"
	"strings"

	"github.com/knoguchi/omnirag/internal/embedder"
)

// fakeEmbedder is a hand-written in-process stand-in for embedder.Embedder,
// deterministic by construction: the vector is the byte-length of the text
// in every dimension, so tests can assert on it without a real model.
type fakeEmbedder struct {
	dim     int
	model   string
	calls   []string
	failOn  string
}

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text))
	}
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errFake
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.Embed(ctx, "query:"+text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int   { return f.dim }
func (f *fakeEmbedder) ModelName() string { return f.model }

var _ embedder.Embedder = (*fakeEmbedder)(nil)

var errFake = &fakeErr{"fake embedder failure"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }
