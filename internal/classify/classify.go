// Package classify labels a query's complexity (C7) so the pipeline
// orchestrator (internal/service) can dispatch to the cheapest strategy that
// will still answer it well: a direct LLM call, single-hop vector-RAG, or
// multi-hop graph-RAG.
package classify

import (
	"context"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/knoguchi/omnirag/internal/llm"
)

// Complexity is the three-way label produced by Classify.
type Complexity string

const (
	Simple    Complexity = "SIMPLE"
	SingleHop Complexity = "SINGLE_HOP"
	MultiHop  Complexity = "MULTI_HOP"
)

const DefaultCacheSize = 2048

var (
	whWordPattern = regexp.MustCompile(`(?i)\b(who|what|where|why|when|which|how)\b`)

	comparisonPattern = regexp.MustCompile(`(?i)\b(versus|vs\.?|compare[ds]?|compared to|difference between|better than|worse than|rather than)\b`)
	aggregationPattern = regexp.MustCompile(`(?i)\b(all|every|total|sum|count|how many|list all|across|combined|overall)\b`)
	temporalPattern    = regexp.MustCompile(`(?i)\b(before|after|since|until|during|over time|evolution|history of|timeline)\b`)
)

// Classifier assigns a Complexity to a query.
type Classifier interface {
	Classify(ctx context.Context, query string) (Complexity, error)
}

// RuleClassifier applies the fast, deterministic heuristics from the spec:
// short wh-word-free queries are SIMPLE, queries carrying a comparison,
// aggregation, or temporal marker are MULTI_HOP, and everything else is
// left to the caller (it returns ok=false rather than guessing).
type RuleClassifier struct{}

// NewRuleClassifier creates a rule-based fast-path classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify returns a label and ok=true when the rules confidently decide
// the query; ok=false means the caller should fall through to a model.
func (RuleClassifier) Classify(query string) (label Complexity, ok bool) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Simple, true
	}

	if comparisonPattern.MatchString(trimmed) || aggregationPattern.MatchString(trimmed) || temporalPattern.MatchString(trimmed) {
		return MultiHop, true
	}

	tokenCount := len(strings.Fields(trimmed))
	if !whWordPattern.MatchString(trimmed) && tokenCount < 10 {
		return Simple, true
	}

	return "", false
}

// HybridClassifier is the production Classifier: it tries the rule-based
// fast path first, then an LLM sequence classifier for ambiguous queries,
// caching results by normalized query text. Defaults to SINGLE_HOP on any
// LLM error, per spec.
type HybridClassifier struct {
	rules *RuleClassifier
	llm   llm.Client
	model string
	cache *lru.Cache[string, Complexity]
}

// Option configures a HybridClassifier.
type Option func(*HybridClassifier)

// WithModel overrides the LLM model used for the sequence-classifier
// fallback.
func WithModel(model string) Option {
	return func(h *HybridClassifier) { h.model = model }
}

// WithCacheSize overrides the LRU cache capacity.
func WithCacheSize(size int) Option {
	return func(h *HybridClassifier) {
		cache, err := lru.New[string, Complexity](size)
		if err == nil {
			h.cache = cache
		}
	}
}

// New creates a hybrid classifier. llmClient may be nil, in which case
// ambiguous queries default to SINGLE_HOP without a model call.
func New(llmClient llm.Client, opts ...Option) *HybridClassifier {
	cache, _ := lru.New[string, Complexity](DefaultCacheSize)
	h := &HybridClassifier{
		rules: NewRuleClassifier(),
		llm:   llmClient,
		model: "llama3.2:1b",
		cache: cache,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Classify labels query, consulting the cache, then the rule-based fast
// path, then (if available) the LLM fallback.
func (h *HybridClassifier) Classify(ctx context.Context, query string) (Complexity, error) {
	key := normalize(query)
	if key == "" {
		return Simple, nil
	}

	if label, ok := h.cache.Get(key); ok {
		return label, nil
	}

	if label, ok := h.rules.Classify(query); ok {
		h.cache.Add(key, label)
		return label, nil
	}

	label := h.classifyWithLLM(ctx, query)
	h.cache.Add(key, label)
	return label, nil
}

func (h *HybridClassifier) classifyWithLLM(ctx context.Context, query string) Complexity {
	if h.llm == nil {
		return SingleHop
	}

	messages := []llm.Message{llm.User(buildPrompt(query))}
	response, err := h.llm.Complete(ctx, messages, llm.GenerateOptions{Model: h.model, Temperature: 0, MaxTokens: 16})
	if err != nil {
		return SingleHop
	}
	return parseLabel(response)
}

func buildPrompt(query string) string {
	return `Classify the query below into exactly one label:
SIMPLE - a direct factual question answerable without retrieving documents
SINGLE_HOP - answerable from one relevant passage or document
MULTI_HOP - requires combining evidence from multiple documents or entities

Respond with ONLY one word: SIMPLE, SINGLE_HOP, or MULTI_HOP.

Query: ` + query + `

Classification:`
}

func parseLabel(response string) Complexity {
	upper := strings.ToUpper(strings.TrimSpace(response))
	switch upper {
	case string(Simple):
		return Simple
	case string(SingleHop):
		return SingleHop
	case string(MultiHop):
		return MultiHop
	}

	if strings.Contains(upper, string(MultiHop)) {
		return MultiHop
	}
	if strings.Contains(upper, string(Simple)) {
		return Simple
	}
	if strings.Contains(upper, string(SingleHop)) {
		return SingleHop
	}
	return SingleHop
}

func normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

var _ Classifier = (*HybridClassifier)(nil)
