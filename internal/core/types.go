// Package core holds the vocabulary shared across the pipeline packages:
// chunk/result types, the answer envelope, and the sentinel errors every
// stage wraps its failures in. Its only internal import is
// internal/classify, for the Complexity label; classify does not import
// core, so the pipeline-stage packages can all depend on core without a
// cycle.
package core

import (
	"time"

	"github.com/knoguchi/omnirag/internal/classify"
)

// Chunk is a unit of indexed text: the output of chunking and the input to
// embedding and retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	OwnerID    string
	SessionID  string // optional; empty means visible to every session for OwnerID
	Text       string
	Vector     []float32
	Metadata   map[string]string
}

// SearchResult is one retrieved chunk plus the score it was retrieved with.
// Score's scale depends on the stage that produced it (RRF-fused, raw
// cosine, or cross-encoder relevance) — callers compare scores only within
// the same stage.
type SearchResult struct {
	Chunk
	Score  float32
	Source string // "dense", "sparse", "fused", "graph", "web"
}

// QualityTier buckets a QualityReport's overall score.
type QualityTier string

const (
	TierExcellent          QualityTier = "excellent"
	TierGood               QualityTier = "good"
	TierAcceptable         QualityTier = "acceptable"
	TierNeedsImprovement   QualityTier = "needs_improvement"
)

// QualityReport is the six-dimension score attached to every AnswerEnvelope.
type QualityReport struct {
	Structure   float64
	Density     float64
	Naturalness float64
	Confidence  float64
	Overall     float64
	Tier        QualityTier
}

// AnswerMetadata is the typed replacement for the metadata-spread-dict
// pattern: every field an answer can carry is named, not assembled from a
// variadic map.
type AnswerMetadata struct {
	Complexity        classify.Complexity
	StrategyUsed      string
	RetrievalQuality  string
	Critique          string
	SourcesConsidered int
	SourcesCited      int
	RetrievalMS       int64
	GenerationMS      int64
	RefinementRounds  int
	UsedWebSearch     bool
	UsedGraph         bool
	Warnings          []string
}

// Citation points a claim in the answer back to a source chunk.
type Citation struct {
	ChunkID    string
	DocumentID string
	Snippet    string
}

// AnswerEnvelope is the structurally-validated final response (C14).
type AnswerEnvelope struct {
	Answer     string
	Citations  []Citation
	Quality    QualityReport
	Metadata   AnswerMetadata
	GeneratedAt time.Time
}
