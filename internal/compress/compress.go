// Package compress implements the contextual compressor (C10): for each
// retrieved document, it asks the LLM to extract only the spans relevant to
// the query, verbatim, dropping the rest. This keeps the final generation
// prompt small without paraphrasing away evidence the answer will cite.
package compress

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/llm"
)

// DefaultConcurrency bounds how many documents are compressed in parallel.
const DefaultConcurrency = 4

// Compressor extracts query-relevant spans from each document in parallel.
type Compressor struct {
	llm         llm.Client
	model       string
	concurrency int
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithModel overrides the compression model.
func WithModel(model string) Option {
	return func(c *Compressor) { c.model = model }
}

// WithConcurrency overrides the number of documents compressed at once.
func WithConcurrency(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a Compressor.
func New(llmClient llm.Client, opts ...Option) *Compressor {
	c := &Compressor{llm: llmClient, model: "llama3.2", concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress extracts the spans of each document relevant to query, running
// across documents with bounded parallelism. A document whose extraction
// is empty (nothing relevant found) or whose LLM call fails is dropped
// from the result rather than failing the whole call.
func (c *Compressor) Compress(ctx context.Context, query string, docs []core.SearchResult) ([]core.SearchResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	compressed := make([]core.SearchResult, len(docs))
	keep := make([]bool, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			extracted, err := c.extractOne(gctx, query, doc.Text)
			if err != nil {
				return nil
			}
			if extracted == "" {
				return nil
			}
			result := doc
			result.Text = extracted
			compressed[i] = result
			keep[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compressing documents: %w", err)
	}

	out := make([]core.SearchResult, 0, len(docs))
	for i, k := range keep {
		if k {
			out = append(out, compressed[i])
		}
	}
	return out, nil
}

func (c *Compressor) extractOne(ctx context.Context, query, document string) (string, error) {
	prompt := buildExtractPrompt(query, document)
	response, err := c.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: c.model, Temperature: 0, MaxTokens: 512})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrLLM, err)
	}
	return cleanExtraction(response), nil
}

func buildExtractPrompt(query, document string) string {
	return fmt.Sprintf(`Extract only the sentences from the document below that are relevant to answering the question. Copy them verbatim, do not paraphrase or summarize. If nothing in the document is relevant, respond with exactly: NONE

Question: %s

Document:
%s

Relevant excerpt:`, query, document)
}

func cleanExtraction(response string) string {
	trimmed := strings.TrimSpace(response)
	if strings.EqualFold(trimmed, "none") || trimmed == "" {
		return ""
	}
	return trimmed
}
