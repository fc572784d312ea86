package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/crag"
	"github.com/knoguchi/omnirag/internal/hyde"
	"github.com/knoguchi/omnirag/internal/llm"
)

// vectorRAGPrep is the outcome of retrieval, rerank, CRAG, and compression:
// everything needed to either call Complete or Stream on the resulting
// messages, shared by the non-streaming and streaming entry points.
type vectorRAGPrep struct {
	messages         []llm.Message
	finalDocs        []core.SearchResult
	schema           answer.Schema
	retrievalMS      int64
	retrievalQuality string
	usedWebSearch    bool
}

// answerVectorRAG handles the SINGLE_HOP complexity tier: the four
// expanded queries are retrieved concurrently via HyDE, the batches are
// deduplicated and reranked, CRAG corrects for weak evidence, and the
// surviving top documents are compressed into the generation context.
func (p *Pipeline) answerVectorRAG(ctx context.Context, req AnswerRequest, pre preamble) (*core.AnswerEnvelope, error) {
	prep := p.prepareVectorRAG(ctx, pre)

	generationStart := now()
	draft, err := p.LLM.Complete(ctx, prep.messages, llm.GenerateOptions{Temperature: 0.3})
	if err != nil {
		return nil, fmt.Errorf("%w: vector-rag generation: %v", core.ErrLLM, err)
	}
	generationMS := elapsedMS(generationStart)

	envelope := buildEnvelope(ctx, p, req, draft, prep.finalDocs, prep.schema, prep.retrievalMS, generationMS, prep.retrievalQuality, prep.usedWebSearch, false)
	return envelope, nil
}

func (p *Pipeline) prepareVectorRAG(ctx context.Context, pre preamble) vectorRAGPrep {
	retrievalStart := now()

	batches := make([][]core.SearchResult, len(pre.multiQueries))
	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range pre.multiQueries {
		i, variant := i, variant
		g.Go(func() error {
			results, err := p.retrieveOne(gctx, variant, pre.ownerID, pre.sessionID)
			if err != nil {
				// Soft failure per §7 RetrievalSoftError: this variant
				// contributes nothing rather than failing the request.
				return nil
			}
			batches[i] = results
			return nil
		})
	}
	_ = g.Wait()

	var merged []core.SearchResult
	for _, b := range batches {
		merged = append(merged, b...)
	}
	merged = dedupeByContentHash(merged)

	reranked := merged
	if p.Reranker != nil && len(merged) > 0 {
		scored, err := p.Reranker.Rerank(ctx, pre.rewritten, merged, rerankTopN(p.Tuning))
		if err == nil {
			reranked = make([]core.SearchResult, len(scored))
			for i, s := range scored {
				reranked[i] = s.SearchResult
				reranked[i].Score = s.RerankerScore
			}
		}
	}

	outcome := crag.Outcome{Documents: reranked}
	if p.CRAG != nil {
		outcome = p.CRAG.Run(ctx, pre.rewritten, reranked, 5)
	}
	finalDocs := outcome.Documents

	compressed := finalDocs
	compressTopN := p.Tuning.CompressTopN
	if compressTopN <= 0 {
		compressTopN = 5
	}
	toCompress := finalDocs
	if len(toCompress) > compressTopN {
		toCompress = toCompress[:compressTopN]
	}
	if p.Compressor != nil && len(toCompress) > 0 {
		c, err := p.Compressor.Compress(ctx, pre.rewritten, toCompress)
		if err == nil {
			compressed = c
		}
	}
	retrievalMS := elapsedMS(retrievalStart)

	contextText := contextTextFrom(compressed)
	schema := answer.SchemaFor(classify.SingleHop)
	messages := []llm.Message{
		llm.System(vectorRAGSystemPrompt(schema, pre, contextText)),
		llm.User(pre.rewritten),
	}

	return vectorRAGPrep{
		messages:         messages,
		finalDocs:        finalDocs,
		schema:           schema,
		retrievalMS:      retrievalMS,
		retrievalQuality: retrievalQualityLabel(outcome.Grade),
		usedWebSearch:    outcome.UsedWebSearch,
	}
}

// retrieveOne resolves one query variant into owner- and (optionally)
// session-scoped search results. ownerID is required: every retrieval path
// in the pipeline runs on behalf of a single requesting owner, and results
// belonging to anyone else must never reach generation or citations (I4,
// P1, P2).
func (p *Pipeline) retrieveOne(ctx context.Context, query, ownerID, sessionID string) ([]core.SearchResult, error) {
	var queryVec []float32
	if p.HyDE != nil {
		t, err := p.HyDE.Transform(ctx, query, hyde.Informative)
		if err == nil {
			queryVec = t.HypoVec
		}
	}
	if queryVec == nil && p.Embedder != nil {
		v, err := p.Embedder.EmbedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		queryVec = v
	}
	if p.Index == nil {
		return nil, nil
	}
	alpha := p.Tuning.RRFAlphaHyDE
	if alpha == 0 {
		alpha = 0.6
	}
	topK := p.Tuning.RetrieveTopK
	if topK <= 0 {
		topK = 20
	}
	return p.Index.HybridSearch(ctx, query, queryVec, ownerID, sessionID, "", alpha, topK)
}

func rerankTopN(t Tuning) int {
	if t.RerankTopN > 0 {
		return t.RerankTopN
	}
	return 10
}

func contextTextFrom(docs []core.SearchResult) string {
	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "[Source: %s]\n%s\n\n", sourceName(d), strings.TrimSpace(d.Text))
	}
	return sb.String()
}

func sourceName(d core.SearchResult) string {
	if name, ok := d.Metadata["title"]; ok && name != "" {
		return name
	}
	if d.DocumentID != "" {
		return d.DocumentID
	}
	return d.ID
}

func vectorRAGSystemPrompt(schema answer.Schema, pre preamble, contextText string) string {
	var sb strings.Builder
	sb.WriteString(schemaPrompt(schema))
	if pre.memorySummary != "" {
		sb.WriteString("\n\nWhat you remember about this user:\n")
		sb.WriteString(pre.memorySummary)
	}
	if pre.visualContext != "" {
		sb.WriteString("\n\nVisual context:\n")
		sb.WriteString(pre.visualContext)
	}
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(contextText)
	sb.WriteString("\nCite each fact you use with its [Source: ...] tag.")
	return sb.String()
}

func schemaPrompt(schema answer.Schema) string {
	next := ""
	if schema.RequireNextSteps {
		next = " End with a short \"Next steps\" section."
	}
	return fmt.Sprintf(
		"Answer the question directly in the first sentence, no filler opening. "+
			"Structure the body with headings or bullets. Target length: %d-%d words.%s",
		schema.Length.Min, schema.Length.Max, next)
}
