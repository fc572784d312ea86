package service

import (
	"context"
	"fmt"
	"time"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/core"
)

// buildEnvelope runs the shared validate -> refine -> critique -> score
// sequence (strictly serial, per spec §5) and assembles the final
// AnswerEnvelope. docs is the evidence actually consumed by the draft, used
// both for citations and for self-critique.
func buildEnvelope(
	ctx context.Context,
	p *Pipeline,
	req AnswerRequest,
	draft string,
	docs []core.SearchResult,
	schema answer.Schema,
	retrievalMS, generationMS int64,
	retrievalQuality string,
	usedWebSearch, usedGraph bool,
) *core.AnswerEnvelope {
	validation := answer.Validate(draft, schema)

	refinementRounds := 0
	finalText := draft
	if p.Refiner != nil && answer.ShouldRefine(validation, wordCount(draft)) {
		refined, diff := p.Refiner.Refine(ctx, draft)
		if diff.Applied {
			finalText = refined
			refinementRounds = 1
			validation = answer.Validate(finalText, schema)
		}
	}

	density := answer.AnalyzeDensity(finalText)
	naturalness := answer.AnalyzeNaturalness(finalText)

	confidence := 0.8
	critiqueSummary := ""
	if p.Critic != nil {
		crit := p.Critic.Critique(ctx, req.Query, finalText, docs)
		confidence = crit.Confidence
		critiqueSummary = critiqueString(crit)
	}

	quality := answer.Score(validation.Overall, density.Score, naturalness.Score, confidence)

	citations := citationsFrom(docs)
	return &core.AnswerEnvelope{
		Answer:    finalText,
		Citations: citations,
		Quality:   quality,
		Metadata: core.AnswerMetadata{
			RetrievalQuality:  retrievalQuality,
			Critique:          critiqueSummary,
			SourcesConsidered: len(docs),
			SourcesCited:      len(citations),
			RetrievalMS:       retrievalMS,
			GenerationMS:      generationMS,
			RefinementRounds:  refinementRounds,
			UsedWebSearch:     usedWebSearch,
			UsedGraph:         usedGraph,
		},
	}
}

func critiqueString(c answer.Critique) string {
	return fmt.Sprintf("supported=%t relevant=%t useful=%t confidence=%.2f",
		c.Supported, c.Relevant, c.Useful, c.Confidence)
}

func citationsFrom(docs []core.SearchResult) []core.Citation {
	if len(docs) == 0 {
		return nil
	}
	out := make([]core.Citation, 0, len(docs))
	for _, d := range docs {
		snippet := d.Text
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		out = append(out, core.Citation{ChunkID: d.ID, DocumentID: d.DocumentID, Snippet: snippet})
	}
	return out
}

func wordCount(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if !isSpace && !inWord {
			n++
			inWord = true
		} else if isSpace {
			inWord = false
		}
	}
	return n
}

func elapsedMS(start time.Time) int64 { return time.Since(start).Milliseconds() }

// answerRecord projects an AnswerEnvelope into the rolling quality log
// record, shared by the non-streaming and streaming entry points.
func answerRecord(complexity classify.Complexity, envelope *core.AnswerEnvelope) answer.Record {
	return answer.Record{
		Timestamp:         envelope.GeneratedAt,
		Complexity:        complexity,
		Quality:           envelope.Quality,
		RefinementApplied: envelope.Metadata.RefinementRounds > 0,
	}
}
