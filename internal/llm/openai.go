package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIModel is used when GenerateOptions.Model is unset.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements Client using the OpenAI chat completions API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client authenticated with the given API key.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleTool:
			out = append(out, openai.UserMessage(fmt.Sprintf("[tool:%s] %s", m.ToolName, m.ToolResult)))
		}
	}
	return out
}

// Complete sends a message history to OpenAI and returns the full response.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai complete: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends a message history to OpenAI and streams the response.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamChunk, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(float64(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			token := chunk.Choices[0].Delta.Content
			if token == "" {
				continue
			}
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err(), Done: true}
				return
			case chunks <- StreamChunk{Token: token}:
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Error: fmt.Errorf("openai stream: %w", err), Done: true}
			return
		}
		chunks <- StreamChunk{Done: true}
	}()

	return chunks, nil
}

// GenerateTitle produces a short title for the given conversation.
func (c *OpenAIClient) GenerateTitle(ctx context.Context, messages []Message) (string, error) {
	title, err := c.Complete(ctx, defaultTitlePrompt(messages), GenerateOptions{MaxTokens: 24})
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	return title, nil
}

// Ensure OpenAIClient implements Client.
var _ Client = (*OpenAIClient)(nil)
