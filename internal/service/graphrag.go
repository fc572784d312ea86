package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/graph"
	"github.com/knoguchi/omnirag/internal/llm"
)

// partial is one piece of map-phase evidence: either an LLM-distilled
// paragraph grounded on a single community or chunk, or a "virtual"
// passthrough for context that needs no distillation (memory, visual
// description).
type partial struct {
	Source string
	Text   string
}

// graphRAGPrep is the outcome of community/chunk retrieval and map-phase
// distillation: everything needed to either call Complete or Stream on the
// resulting messages, shared by the non-streaming and streaming entry
// points.
type graphRAGPrep struct {
	messages    []llm.Message
	chunks      []core.SearchResult
	schema      answer.Schema
	retrievalMS int64
}

// answerGraphRAG handles the MULTI_HOP complexity tier with a map-reduce
// over community summaries and top chunks: each piece of evidence is
// distilled independently (map, concurrent), then synthesized into one
// answer citing every contributing source (reduce).
func (p *Pipeline) answerGraphRAG(ctx context.Context, req AnswerRequest, pre preamble) (*core.AnswerEnvelope, error) {
	prep := p.prepareGraphRAG(ctx, pre)

	generationStart := now()
	draft, err := p.LLM.Complete(ctx, prep.messages, llm.GenerateOptions{Temperature: 0.3})
	if err != nil {
		return nil, fmt.Errorf("%w: graph-rag generation: %v", core.ErrLLM, err)
	}
	generationMS := elapsedMS(generationStart)

	envelope := buildEnvelope(ctx, p, req, draft, prep.chunks, prep.schema, prep.retrievalMS, generationMS, "CORRECT", false, true)
	return envelope, nil
}

func (p *Pipeline) prepareGraphRAG(ctx context.Context, pre preamble) graphRAGPrep {
	retrievalStart := now()

	chunks, err := p.retrieveOne(ctx, pre.rewritten, pre.ownerID, pre.sessionID)
	if err != nil {
		chunks = nil
	}
	chunks = dedupeByContentHash(chunks)
	topChunks := p.Tuning.MultiHopTopChunks
	if topChunks <= 0 {
		topChunks = 10
	}
	if len(chunks) > topChunks {
		chunks = chunks[:topChunks]
	}

	var communities []graph.CommunityMatch
	if p.Graph != nil {
		var queryVec []float32
		if p.Embedder != nil {
			queryVec, _ = p.Embedder.EmbedQuery(ctx, pre.rewritten)
		}
		topCommunities := p.Tuning.MultiHopCommunities
		if topCommunities <= 0 {
			topCommunities = 3
		}
		communities, _ = p.Graph.SearchCommunities(ctx, pre.rewritten, queryVec, pre.ownerID, topCommunities)
	}
	retrievalMS := elapsedMS(retrievalStart)

	partials := p.mapPhase(ctx, pre, chunks, communities)

	schema := answer.SchemaFor(classify.MultiHop)
	messages := []llm.Message{
		llm.System(graphRAGSystemPrompt(schema, partials)),
		llm.User(pre.rewritten),
	}

	return graphRAGPrep{
		messages:    messages,
		chunks:      chunks,
		schema:      schema,
		retrievalMS: retrievalMS,
	}
}

// mapPhase distills every piece of evidence concurrently: one goroutine per
// community, one per chunk, plus virtual passthrough partials for memory
// summary and visual context, none of which block each other.
func (p *Pipeline) mapPhase(ctx context.Context, pre preamble, chunks []core.SearchResult, communities []graph.CommunityMatch) []partial {
	n := len(chunks) + len(communities)
	slots := make([]partial, n, n+2)

	g, gctx := errgroup.WithContext(ctx)
	idx := 0
	for _, c := range communities {
		i, community := idx, c
		idx++
		g.Go(func() error {
			slots[i] = p.distillCommunity(gctx, pre.rewritten, community)
			return nil
		})
	}
	for _, c := range chunks {
		i, chunk := idx, c
		idx++
		g.Go(func() error {
			slots[i] = p.distillChunk(gctx, pre.rewritten, chunk)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]partial, 0, n+2)
	for _, s := range slots {
		if strings.TrimSpace(s.Text) != "" {
			out = append(out, s)
		}
	}
	if pre.memorySummary != "" {
		out = append(out, partial{Source: "Memory Summary", Text: pre.memorySummary})
	}
	if pre.visualContext != "" {
		out = append(out, partial{Source: "Visual Description", Text: pre.visualContext})
	}
	return out
}

func (p *Pipeline) distillCommunity(ctx context.Context, query string, m graph.CommunityMatch) partial {
	source := communityLabel(m.Community)
	if m.Community.Summary == "" {
		return partial{}
	}
	prompt := fmt.Sprintf(
		"Question: %s\n\nCommunity summary:\n%s\n\nIn 2-3 sentences, state only what this summary contributes toward answering the question. If it contributes nothing, reply with a single dash.",
		query, m.Community.Summary)
	reply, err := p.LLM.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Temperature: 0.2})
	if err != nil || strings.TrimSpace(reply) == "-" {
		return partial{}
	}
	return partial{Source: source, Text: strings.TrimSpace(reply)}
}

func (p *Pipeline) distillChunk(ctx context.Context, query string, r core.SearchResult) partial {
	source := sourceName(r)
	prompt := fmt.Sprintf(
		"Question: %s\n\nPassage:\n%s\n\nIn 2-3 sentences, state only what this passage contributes toward answering the question. If it contributes nothing, reply with a single dash.",
		query, r.Text)
	reply, err := p.LLM.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Temperature: 0.2})
	if err != nil || strings.TrimSpace(reply) == "-" {
		return partial{}
	}
	return partial{Source: source, Text: strings.TrimSpace(reply)}
}

func communityLabel(c graph.Community) string {
	id := c.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "community-" + id
}

func graphRAGSystemPrompt(schema answer.Schema, partials []partial) string {
	var sb strings.Builder
	sb.WriteString(schemaPrompt(schema))
	sb.WriteString("\n\nSynthesize the following evidence into one coherent answer. Cite every fact with its [Source: ...] tag, using the tag exactly as given:\n\n")
	for _, pt := range partials {
		fmt.Fprintf(&sb, "[Source: %s]\n%s\n\n", pt.Source, pt.Text)
	}
	return sb.String()
}
