package service

import (
	"context"
	"fmt"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/llm"
)

// StreamEventType tags a StreamEvent the way the transport contract names
// it: "metadata", "content", "done", or "error".
type StreamEventType string

const (
	EventMetadata StreamEventType = "metadata"
	EventContent  StreamEventType = "content"
	EventDone     StreamEventType = "done"
	EventError    StreamEventType = "error"
)

// StreamEvent is one increment of a streamed answer. Exactly the fields
// relevant to Type are populated; callers switch on Type before reading
// anything else, matching the tagged event sequence the HTTP host relays
// over SSE.
type StreamEvent struct {
	Type StreamEventType

	// Leading metadata event (emitted once, before any content).
	SessionID     string
	RetrievedDocs []string
	MemoryActive  bool
	MemorySummary string
	Complexity    classify.Complexity
	Strategy      Strategy
	MultiQueries  []string

	// Content event.
	Content string

	// Trailing metadata event (emitted once, after the stream completes).
	Confidence         float64
	Critique           string
	StructureScore     float64
	DensityScore       float64
	NaturalnessScore   float64
	OverallScore       float64
	QualityTier        string
	RefinementApplied  bool
	RetrievalQuality   string
	UsedWebSearch      bool

	// Done event.
	MessageID string
	Title     string
}

// StreamAnswer runs the same pipeline as Answer, but yields the draft
// incrementally: a leading metadata event, a sequence of content events as
// the LLM streams, a trailing metadata event once validate/refine/critique/
// score have run on the complete draft, then a done event. A cancelled or
// failed stream emits a single error event and closes the channel.
func (p *Pipeline) StreamAnswer(ctx context.Context, req AnswerRequest) <-chan StreamEvent {
	out := make(chan StreamEvent, 8)

	go func() {
		defer close(out)

		if p.Memory != nil && req.UserID != "" {
			p.Memory.AddUserMessage(req.UserID, req.Query)
		}

		pre := p.runPreamble(ctx, req)
		strategy := p.strategyFor(req, pre)

		var messages []llm.Message
		var docs []string
		var retrievalQuality string
		var usedWebSearch, usedGraph bool
		var buildFinal func() finalEnvelope

		switch strategy {
		case StrategyDirect:
			msgs, schema := prepareDirect(pre)
			messages = msgs
			buildFinal = func() finalEnvelope {
				return finalEnvelope{schema: schema}
			}
		case StrategyGraphRAG:
			prep := p.prepareGraphRAG(ctx, pre)
			messages = prep.messages
			for _, d := range prep.chunks {
				docs = append(docs, sourceName(d))
			}
			usedGraph = true
			retrievalQuality = "CORRECT"
			buildFinal = func() finalEnvelope {
				return finalEnvelope{docs: prep.chunks, schema: prep.schema, retrievalMS: prep.retrievalMS}
			}
		default:
			prep := p.prepareVectorRAG(ctx, pre)
			messages = prep.messages
			for _, d := range prep.finalDocs {
				docs = append(docs, sourceName(d))
			}
			retrievalQuality = prep.retrievalQuality
			usedWebSearch = prep.usedWebSearch
			buildFinal = func() finalEnvelope {
				return finalEnvelope{docs: prep.finalDocs, schema: prep.schema, retrievalMS: prep.retrievalMS}
			}
		}

		multiQueries := make([]string, 0, len(pre.multiQueries))
		for _, q := range pre.multiQueries {
			multiQueries = append(multiQueries, q)
		}

		select {
		case out <- StreamEvent{
			Type:             EventMetadata,
			SessionID:        req.SessionID,
			RetrievedDocs:    docs,
			MemoryActive:     pre.memoryActive,
			MemorySummary:    pre.memorySummary,
			Complexity:       pre.complexity,
			Strategy:         strategy,
			MultiQueries:     multiQueries,
			RetrievalQuality: retrievalQuality,
			UsedWebSearch:    usedWebSearch,
		}:
		case <-ctx.Done():
			out <- StreamEvent{Type: EventError, Content: ctx.Err().Error()}
			return
		}

		chunks, err := p.LLM.Stream(ctx, messages, llm.GenerateOptions{Temperature: 0.3})
		if err != nil {
			out <- StreamEvent{Type: EventError, Content: fmt.Sprintf("generation: %v", err)}
			return
		}

		var draft string
		for c := range chunks {
			if c.Error != nil {
				out <- StreamEvent{Type: EventError, Content: c.Error.Error()}
				return
			}
			if c.Token != "" {
				draft += c.Token
				select {
				case out <- StreamEvent{Type: EventContent, Content: c.Token}:
				case <-ctx.Done():
					out <- StreamEvent{Type: EventError, Content: ctx.Err().Error()}
					return
				}
			}
			if c.Done {
				break
			}
		}

		fe := buildFinal()
		envelope := buildEnvelope(ctx, p, req, draft, fe.docs, fe.schema, fe.retrievalMS, 0, retrievalQuality, usedWebSearch, usedGraph)
		envelope.Metadata.Complexity = pre.complexity
		envelope.Metadata.StrategyUsed = string(strategy)
		envelope.GeneratedAt = now()

		if p.Memory != nil && req.UserID != "" {
			p.Memory.AddAssistantMessage(req.UserID, envelope.Answer)
		}
		if p.Logger != nil {
			_ = p.Logger.Log(answerRecord(pre.complexity, envelope))
		}

		out <- StreamEvent{
			Type:              EventMetadata,
			Confidence:        envelope.Quality.Confidence,
			Critique:          envelope.Metadata.Critique,
			StructureScore:    envelope.Quality.Structure,
			DensityScore:      envelope.Quality.Density,
			NaturalnessScore:  envelope.Quality.Naturalness,
			OverallScore:      envelope.Quality.Overall,
			QualityTier:       string(envelope.Quality.Tier),
			RefinementApplied: envelope.Metadata.RefinementRounds > 0,
			RetrievalQuality:  envelope.Metadata.RetrievalQuality,
			UsedWebSearch:     envelope.Metadata.UsedWebSearch,
		}

		var title string
		if p.LLM != nil {
			title, _ = p.LLM.GenerateTitle(ctx, append(messages, llm.Assistant(envelope.Answer)))
		}
		out <- StreamEvent{Type: EventDone, MessageID: envelope.GeneratedAt.Format("20060102T150405.000000000"), Title: title}
	}()

	return out
}

// finalEnvelope carries the strategy-specific inputs buildEnvelope needs,
// computed once the full draft is known.
type finalEnvelope struct {
	docs        []core.SearchResult
	schema      answer.Schema
	retrievalMS int64
}
