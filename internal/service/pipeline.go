// Package service is the pipeline orchestrator (C13): a single
// dependency-injected Pipeline wiring memory, rewriting, HyDE, hybrid
// retrieval, reranking, CRAG, compression, the knowledge graph, and
// answer generation into the two operations the HTTP host calls, Answer
// and StreamAnswer.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/compress"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/crag"
	"github.com/knoguchi/omnirag/internal/embedder"
	"github.com/knoguchi/omnirag/internal/extract"
	"github.com/knoguchi/omnirag/internal/graph"
	"github.com/knoguchi/omnirag/internal/hyde"
	"github.com/knoguchi/omnirag/internal/index"
	"github.com/knoguchi/omnirag/internal/llm"
	"github.com/knoguchi/omnirag/internal/memory"
	"github.com/knoguchi/omnirag/internal/reranker"
	"github.com/knoguchi/omnirag/internal/rewrite"
)

// Strategy is the dispatch branch a request is routed to, named after the
// complexity tier that selects it.
type Strategy string

const (
	StrategyDirect    Strategy = "direct_generation"
	StrategyVectorRAG Strategy = "vector_rag"
	StrategyGraphRAG  Strategy = "graph_rag"
)

// VisualDescriber is the external visual-context collaborator (spec'd, not
// owned): given a set of opaque image references it returns a textual
// description to fold into the prompt. Pipeline treats a nil Visual as "no
// visual context available" rather than failing the request.
type VisualDescriber interface {
	Describe(ctx context.Context, imageRefs []string) (string, error)
}

// Pipeline is the dependency-injected orchestrator. Every field is supplied
// at construction; none are package-level singletons, so a test builds an
// alternate Pipeline from fakes.
type Pipeline struct {
	LLM        llm.Client
	Embedder   embedder.Embedder
	Index      *index.Store
	Graph      *graph.Store
	Memory     *memory.Store
	Classifier classify.Classifier
	Rewriter   *rewrite.Rewriter
	HyDE       *hyde.Engine
	Reranker   reranker.Reranker
	CRAG       *crag.Controller
	Compressor *compress.Compressor
	Extractor  *extract.Extractor
	Refiner    *answer.Refiner
	Critic     *answer.Critic
	Logger     *answer.Logger
	Visual     VisualDescriber

	Tuning Tuning
}

// Tuning holds the fusion/diversity/depth knobs Answer and StreamAnswer
// read on every call, normally sourced from internal/config.
type Tuning struct {
	RRFAlpha            float64
	RRFAlphaHyDE        float64
	DiversityLambda     float64
	RerankTopN          int
	RetrieveTopK        int
	CompressTopN        int
	MultiHopTopChunks   int
	MultiHopCommunities int
}

// DefaultTuning mirrors internal/config's env-default values, for callers
// building a Pipeline without going through config.Load (e.g. tests).
func DefaultTuning() Tuning {
	return Tuning{
		RRFAlpha:            0.5,
		RRFAlphaHyDE:        0.6,
		DiversityLambda:     0.3,
		RerankTopN:          20,
		RetrieveTopK:        20,
		CompressTopN:        5,
		MultiHopTopChunks:   10,
		MultiHopCommunities: 3,
	}
}

// New assembles a Pipeline from its dependencies. Graph may be left nil
// when no knowledge-graph backend is configured for this deployment:
// MULTI_HOP then falls back to the vector-RAG strategy.
func New(deps Pipeline) *Pipeline {
	p := deps
	if p.Tuning == (Tuning{}) {
		p.Tuning = DefaultTuning()
	}
	return &p
}

// AnswerRequest is the input to Answer/StreamAnswer (spec §6).
type AnswerRequest struct {
	Query            string
	UserID           string
	SessionID        string
	StrategyOverride Strategy
	ImageRefs        []string
	MemorySummary    string
}

// preamble is the result of Phase 0, shared by every strategy branch.
type preamble struct {
	ownerID        string
	sessionID      string
	rewritten      string
	history        []rewrite.Turn
	memoryActive   bool
	memorySummary  string
	visualContext  string
	complexity     classify.Complexity
	multiQueries   [4]string
}

// runPreamble executes Phase 0: memory recall, then rewrite, then (for any
// strategy that will retrieve) query expansion. Ordering: memory recall
// precedes rewrite; rewrite precedes strategy selection.
func (p *Pipeline) runPreamble(ctx context.Context, req AnswerRequest) preamble {
	pre := preamble{ownerID: req.UserID, sessionID: req.SessionID, memorySummary: req.MemorySummary}

	var history []rewrite.Turn
	if p.Memory != nil && req.UserID != "" {
		msgs := p.Memory.GetRecentHistory(req.UserID, 2*rewriteHistoryTurns)
		history = turnsFromMessages(msgs)
		if len(history) > 0 {
			pre.memoryActive = true
		}
		if rec, ok := p.Memory.GetRecord(req.UserID); ok && pre.memorySummary == "" {
			pre.memorySummary = memory.FormatForPrompt(rec.Messages)
		}
	}
	pre.history = history

	pre.rewritten = req.Query
	if p.Rewriter != nil {
		pre.rewritten = p.Rewriter.Rewrite(ctx, req.Query, history)
	}

	if p.Visual != nil && len(req.ImageRefs) > 0 {
		if desc, err := p.Visual.Describe(ctx, req.ImageRefs); err == nil {
			pre.visualContext = desc
		}
	}

	if req.StrategyOverride != "" {
		pre.complexity = complexityForOverride(req.StrategyOverride)
	} else if p.Classifier != nil {
		c, err := p.Classifier.Classify(ctx, pre.rewritten)
		if err != nil {
			c = classify.SingleHop
		}
		pre.complexity = c
	} else {
		pre.complexity = classify.SingleHop
	}

	if pre.complexity != classify.Simple && p.Rewriter != nil {
		pre.multiQueries = p.Rewriter.Expand(ctx, pre.rewritten)
	} else {
		pre.multiQueries = [4]string{pre.rewritten, pre.rewritten, pre.rewritten, pre.rewritten}
	}

	return pre
}

const rewriteHistoryTurns = 5

func complexityForOverride(s Strategy) classify.Complexity {
	switch s {
	case StrategyDirect:
		return classify.Simple
	case StrategyGraphRAG:
		return classify.MultiHop
	default:
		return classify.SingleHop
	}
}

func turnsFromMessages(msgs []memory.Message) []rewrite.Turn {
	var turns []rewrite.Turn
	var pending rewrite.Turn
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			if pending.Query != "" {
				turns = append(turns, pending)
			}
			pending = rewrite.Turn{Query: m.Content}
		case llm.RoleAssistant:
			pending.Response = m.Content
			turns = append(turns, pending)
			pending = rewrite.Turn{}
		}
	}
	if pending.Query != "" {
		turns = append(turns, pending)
	}
	return turns
}

// strategyFor resolves the dispatch branch for a preamble, honoring an
// explicit override and falling back to vector-RAG when MULTI_HOP is
// selected but no graph store is configured.
func (p *Pipeline) strategyFor(req AnswerRequest, pre preamble) Strategy {
	if req.StrategyOverride != "" {
		return req.StrategyOverride
	}
	switch pre.complexity {
	case classify.Simple:
		return StrategyDirect
	case classify.MultiHop:
		if p.Graph != nil {
			return StrategyGraphRAG
		}
		return StrategyVectorRAG
	default:
		return StrategyVectorRAG
	}
}

// Answer runs the full pipeline for one request and returns the final
// answer envelope (C13's non-streaming operation).
func (p *Pipeline) Answer(ctx context.Context, req AnswerRequest) (*core.AnswerEnvelope, error) {
	if p.Memory != nil && req.UserID != "" {
		p.Memory.AddUserMessage(req.UserID, req.Query)
	}

	pre := p.runPreamble(ctx, req)
	strategy := p.strategyFor(req, pre)

	var envelope *core.AnswerEnvelope
	var err error
	switch strategy {
	case StrategyDirect:
		envelope, err = p.answerDirect(ctx, req, pre)
	case StrategyGraphRAG:
		envelope, err = p.answerGraphRAG(ctx, req, pre)
	default:
		envelope, err = p.answerVectorRAG(ctx, req, pre)
	}
	if err != nil {
		return nil, err
	}

	envelope.Metadata.Complexity = pre.complexity
	envelope.Metadata.StrategyUsed = string(strategy)
	envelope.GeneratedAt = now()

	// Phase 2 epilogue: persist to memory. Fire-and-forget per spec §5; a
	// memory-store failure is soft and never blocks the response already
	// handed to the caller.
	if p.Memory != nil && req.UserID != "" {
		p.Memory.AddAssistantMessage(req.UserID, envelope.Answer)
	}
	if p.Logger != nil {
		_ = p.Logger.Log(answerRecord(pre.complexity, envelope))
	}

	return envelope, nil
}

func now() time.Time { return time.Now() }

// dedupeByContentHash drops later results whose chunk text exactly matches
// one already seen, keeping the first (highest-ranked) occurrence.
func dedupeByContentHash(results []core.SearchResult) []core.SearchResult {
	seen := make(map[string]bool, len(results))
	out := make([]core.SearchResult, 0, len(results))
	for _, r := range results {
		h := contentHash(r.Text)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, r)
	}
	return out
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// retrievalQualityLabel renders a crag.Grade (or its absence) as the
// metadata string the external interface exposes.
func retrievalQualityLabel(g crag.Grade) string {
	if g == "" {
		return "CORRECT"
	}
	return string(g)
}
