// Package reranker re-scores retrieved results by relevance (C8), using an
// LLM as a cross-encoder: the model sees the query and each candidate
// together, which captures interactions a bi-encoder's cosine score misses.
//
// # Trade-offs
//
//   - Latency: adds 1-3 seconds per query (one extra LLM call)
//   - Quality: matters most when the vector-search top-k scores are close
//   - Cost: roughly doubles LLM token usage for the query
package reranker

import (
	"context"

	"github.com/knoguchi/omnirag/internal/core"
)

// ScoredResult is a search result carrying its reranker-assigned score
// alongside (not instead of) its original retrieval score.
type ScoredResult struct {
	core.SearchResult
	RerankerScore float32
}

// Reranker re-orders results by relevance to query, returning at most topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []core.SearchResult, topK int) ([]ScoredResult, error)
}
