package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when GenerateOptions.Model is unset.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicClient implements Client using the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClient creates a client authenticated with the given API key.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func splitSystemAndTurns(messages []Message) (string, []anthropic.MessageParam) {
	var system string
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case RoleTool:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf("[tool:%s] %s", m.ToolName, m.ToolResult))))
		}
	}
	return system, turns
}

// Complete sends a message history to Claude and returns the full response.
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message, opts GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	system, turns := splitSystemAndTurns(messages)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  turns,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic complete: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

// Stream sends a message history to Claude and streams the response.
func (c *AnthropicClient) Stream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamChunk, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	system, turns := splitSystemAndTurns(messages)

	stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  turns,
	})

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if delta.Delta.Text != "" {
					select {
					case <-ctx.Done():
						chunks <- StreamChunk{Error: ctx.Err(), Done: true}
						return
					case chunks <- StreamChunk{Token: delta.Delta.Text}:
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Error: fmt.Errorf("anthropic stream: %w", err), Done: true}
			return
		}
		chunks <- StreamChunk{Done: true}
	}()

	return chunks, nil
}

// GenerateTitle produces a short title for the given conversation.
func (c *AnthropicClient) GenerateTitle(ctx context.Context, messages []Message) (string, error) {
	title, err := c.Complete(ctx, defaultTitlePrompt(messages), GenerateOptions{MaxTokens: 24})
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	return title, nil
}

// Ensure AnthropicClient implements Client.
var _ Client = (*AnthropicClient)(nil)
