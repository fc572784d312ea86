package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/llm"
)

// CrossEncoderReranker implements FlashRank-style two-stage reranking: an
// LLM scores every candidate against the query in one batched call (stage
// one), then DiversitySelect (index package) can be applied by the caller
// over the scored output for a diversity-aware final cut (stage two). This
// separation lets the pipeline orchestrator (C13) choose whether diversity
// matters for a given query's complexity.
type CrossEncoderReranker struct {
	llmClient llm.Client
	model     string
}

// Option configures a CrossEncoderReranker.
type Option func(*CrossEncoderReranker)

// WithModel overrides the default model used for scoring.
func WithModel(model string) Option {
	return func(r *CrossEncoderReranker) { r.model = model }
}

// New creates a cross-encoder reranker backed by llmClient.
func New(llmClient llm.Client, opts ...Option) *CrossEncoderReranker {
	r := &CrossEncoderReranker{llmClient: llmClient, model: "llama3.2"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float32 `json:"score"`
}

type rerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Rerank scores each candidate's relevance to query and returns the topK
// highest scoring, descending.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, results []core.SearchResult, topK int) ([]ScoredResult, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if len(results) < topK {
		topK = len(results)
	}

	messages := []llm.Message{llm.User(r.buildPrompt(query, results))}
	response, err := r.llmClient.Complete(ctx, messages, llm.GenerateOptions{Model: r.model, Temperature: 0, MaxTokens: 1024})
	if err != nil {
		return nil, fmt.Errorf("%w: cross-encoder scoring: %v", core.ErrLLM, err)
	}

	scores, err := r.parseResponse(response, len(results))
	if err != nil {
		return r.fallback(results, topK), nil
	}

	scored := make([]ScoredResult, len(results))
	for i, res := range results {
		scored[i] = ScoredResult{SearchResult: res, RerankerScore: scores[i]}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].RerankerScore > scored[j].RerankerScore })

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (r *CrossEncoderReranker) buildPrompt(query string, results []core.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("You are a relevance scoring system. Score each document's relevance to the query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nDocuments to score:\n")

	for i, res := range results {
		content := res.Text
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		fmt.Fprintf(&sb, "[Doc %d]: %s\n\n", i, content)
	}

	sb.WriteString(`Score each document from 0.0 to 1.0 based on relevance to the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}]}

Be strict: irrelevant documents score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)
	return sb.String()
}

func (r *CrossEncoderReranker) parseResponse(response string, n int) ([]float32, error) {
	response = strings.TrimSpace(response)
	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}
	response = strings.TrimSpace(response)

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("parsing cross-encoder response: %w", err)
	}

	scores := make([]float32, n)
	for i := range scores {
		scores[i] = 0.5
	}
	for _, s := range parsed.Scores {
		if s.DocIndex >= 0 && s.DocIndex < n {
			score := s.Score
			if score < 0 {
				score = 0
			}
			if score > 1 {
				score = 1
			}
			scores[s.DocIndex] = score
		}
	}
	return scores, nil
}

func (r *CrossEncoderReranker) fallback(results []core.SearchResult, topK int) []ScoredResult {
	scored := make([]ScoredResult, len(results))
	for i, res := range results {
		scored[i] = ScoredResult{SearchResult: res, RerankerScore: res.Score}
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// Ensure CrossEncoderReranker implements Reranker.
var _ Reranker = (*CrossEncoderReranker)(nil)
