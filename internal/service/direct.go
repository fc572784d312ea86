package service

import (
	"context"
	"fmt"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/llm"
)

// prepareDirect builds the message history for the SIMPLE complexity tier:
// no retrieval, grounded only in memory and conversation history. Shared by
// the non-streaming and streaming entry points.
func prepareDirect(pre preamble) ([]llm.Message, answer.Schema) {
	messages := []llm.Message{llm.System(directSystemPrompt(pre))}
	for _, t := range pre.history {
		messages = append(messages, llm.User(t.Query), llm.Assistant(t.Response))
	}
	messages = append(messages, llm.User(pre.rewritten))
	return messages, answer.SchemaFor(classify.Simple)
}

// answerDirect handles the SIMPLE complexity tier: no retrieval, a single
// LLM call grounded only in memory and conversation history.
func (p *Pipeline) answerDirect(ctx context.Context, req AnswerRequest, pre preamble) (*core.AnswerEnvelope, error) {
	generationStart := now()

	messages, schema := prepareDirect(pre)
	draft, err := p.LLM.Complete(ctx, messages, llm.GenerateOptions{Temperature: 0.3})
	if err != nil {
		return nil, fmt.Errorf("%w: direct generation: %v", core.ErrLLM, err)
	}
	generationMS := elapsedMS(generationStart)

	envelope := buildEnvelope(ctx, p, req, draft, nil, schema, 0, generationMS, "", false, false)
	return envelope, nil
}

func directSystemPrompt(pre preamble) string {
	prompt := "Answer directly and concisely in the first sentence, with no filler opening."
	if pre.memorySummary != "" {
		prompt += "\n\nWhat you remember about this user:\n" + pre.memorySummary
	}
	if pre.visualContext != "" {
		prompt += "\n\nVisual context:\n" + pre.visualContext
	}
	return prompt
}
