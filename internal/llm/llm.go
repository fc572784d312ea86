// Package llm provides a single capability interface for large language model
// clients: complete, stream, and generate a short title from a conversation.
package llm

import (
	"context"
	"fmt"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a tagged-variant chat turn. Exactly one of the payload fields is
// populated, selected by Role, rather than a dynamically-shaped map.
type Message struct {
	Role Role

	// Content holds the text for System, User, and Assistant turns.
	Content string

	// ToolName and ToolResult are populated only when Role == RoleTool.
	ToolName   string
	ToolResult string
}

// System builds a system Message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user Message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant Message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Tool builds a tool-result Message.
func Tool(name, result string) Message {
	return Message{Role: RoleTool, ToolName: name, ToolResult: result}
}

// GenerateOptions configures a completion request.
type GenerateOptions struct {
	// Model overrides the client's default model for this call.
	Model string

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float32

	// MaxTokens limits the response length. 0 means the client's default.
	MaxTokens int
}

// StreamChunk is one unit of a streamed completion.
type StreamChunk struct {
	Token string
	Done  bool
	Error error
}

// Client is the single capability interface every LLM backend implements.
type Client interface {
	// Complete sends a message history and returns the full response text.
	Complete(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)

	// Stream sends a message history and streams the response incrementally.
	// The returned channel is closed when generation completes or fails.
	Stream(ctx context.Context, messages []Message, opts GenerateOptions) (<-chan StreamChunk, error)

	// GenerateTitle produces a short (a few words) title summarizing the
	// given conversation, used for session labels and memory topic tags.
	GenerateTitle(ctx context.Context, messages []Message) (string, error)
}

// defaultTitlePrompt builds the system+user turns shared by every backend's
// GenerateTitle implementation, so adapters don't duplicate the instruction.
func defaultTitlePrompt(messages []Message) []Message {
	var transcript string
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			transcript += fmt.Sprintf("User: %s\n", m.Content)
		case RoleAssistant:
			transcript += fmt.Sprintf("Assistant: %s\n", m.Content)
		}
	}
	return []Message{
		System("Produce a short title (3-6 words, no punctuation at the end) summarizing the conversation below. Respond with the title only."),
		User(transcript),
	}
}
