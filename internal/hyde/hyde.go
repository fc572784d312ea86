// Package hyde implements Hypothetical Document Embeddings (C6): instead of
// embedding the bare query, it asks the LLM to write a short hypothetical
// answer and embeds that instead, on the premise that an answer-shaped
// passage sits closer to the real answer documents in embedding space than
// the question does.
package hyde

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/embedder"
	"github.com/knoguchi/omnirag/internal/llm"
)

// Style controls the register of the generated hypothetical document.
type Style string

const (
	Informative   Style = "informative"
	Technical     Style = "technical"
	Conversational Style = "conversational"
)

// DefaultCacheSize bounds the number of (query, style) pairs cached.
const DefaultCacheSize = 2048

const maxHypoTokens = 200

// Transformed is the output of Transform: the original query, the
// generated hypothetical document, and both of their embeddings.
type Transformed struct {
	OriginalQuery string
	HypoDoc       string
	QueryVec      []float32
	HypoVec       []float32
}

// Engine generates and caches hypothetical documents and their embeddings.
type Engine struct {
	llm      llm.Client
	embedder embedder.Embedder
	model    string
	cache    *lru.Cache[string, Transformed]
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithCacheSize overrides the LRU cache capacity.
func WithCacheSize(size int) Option {
	return func(e *Engine) {
		cache, err := lru.New[string, Transformed](size)
		if err == nil {
			e.cache = cache
		}
	}
}

// New creates a HyDE engine backed by llmClient for generation and emb for
// embedding both the query and the generated document.
func New(llmClient llm.Client, emb embedder.Embedder, opts ...Option) *Engine {
	cache, _ := lru.New[string, Transformed](DefaultCacheSize)
	e := &Engine{llm: llmClient, embedder: emb, model: "llama3.2", cache: cache}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transform returns the hypothetical-document transform for (query, style),
// serving from cache when available.
func (e *Engine) Transform(ctx context.Context, query string, style Style) (Transformed, error) {
	if style == "" {
		style = Informative
	}
	key := cacheKey(query, style)
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	hypoDoc, err := e.generate(ctx, query, style)
	if err != nil {
		return Transformed{}, fmt.Errorf("%w: hyde generation: %v", core.ErrLLM, err)
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Transformed{}, fmt.Errorf("%w: embedding original query: %v", core.ErrEmbed, err)
	}
	hypoVec, err := e.embedder.Embed(ctx, hypoDoc)
	if err != nil {
		return Transformed{}, fmt.Errorf("%w: embedding hypothetical document: %v", core.ErrEmbed, err)
	}

	result := Transformed{OriginalQuery: query, HypoDoc: hypoDoc, QueryVec: queryVec, HypoVec: hypoVec}
	e.cache.Add(key, result)
	return result, nil
}

func (e *Engine) generate(ctx context.Context, query string, style Style) (string, error) {
	prompt := buildPrompt(query, style)
	response, err := e.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: e.model, Temperature: 0.3, MaxTokens: maxHypoTokens})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response), nil
}

func buildPrompt(query string, style Style) string {
	var register string
	switch style {
	case Technical:
		register = "precise, technical, and specific, as if written for an engineer"
	case Conversational:
		register = "conversational and approachable, as if explaining to a colleague"
	default:
		register = "clear, informative, and factual"
	}

	return fmt.Sprintf(`Write a short hypothetical passage that would answer the following question. The passage should be %s. Do not mention that it is hypothetical. Keep it under %d tokens.

Question: %s

Passage:`, register, maxHypoTokens, query)
}

func cacheKey(query string, style Style) string {
	h := sha256.Sum256([]byte(string(style) + "\x00" + query))
	return hex.EncodeToString(h[:])
}
