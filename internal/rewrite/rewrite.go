// Package rewrite turns a raw user question into a standalone retrieval
// query (C5): resolving pronouns against recent history, stripping
// conversational filler, and expanding the result into several phrasings
// that together cover more of the index than any single query would.
package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/knoguchi/omnirag/internal/llm"
)

// Turn is one prior exchange, used to resolve anaphora in the current
// query ("it", "that", "this image").
type Turn struct {
	Query    string
	Response string
}

const maxHistoryTurns = 5

// knownPrefixes are boilerplate lead-ins models tend to prepend to a
// rewritten query; the cleaner strips them so the result reads as a bare
// query string.
var knownPrefixes = []string{
	"optimized query:",
	"rewritten query:",
	"standalone query:",
	"query:",
	"answer:",
}

// Rewriter produces a standalone query and, from it, query variants for
// multi-query retrieval.
type Rewriter struct {
	llm   llm.Client
	model string
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithModel overrides the rewriter's model.
func WithModel(model string) Option {
	return func(r *Rewriter) { r.model = model }
}

// New creates a Rewriter backed by llmClient.
func New(llmClient llm.Client, opts ...Option) *Rewriter {
	r := &Rewriter{llm: llmClient, model: "llama3.2"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite produces one standalone query from query and, if present, the
// trailing turns of history. On any LLM failure the input is returned
// unchanged.
func (r *Rewriter) Rewrite(ctx context.Context, query string, history []Turn) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	prompt := buildRewritePrompt(query, trailingTurns(history, maxHistoryTurns))
	response, err := r.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: r.model, Temperature: 0.2, MaxTokens: 200})
	if err != nil {
		return query
	}

	cleaned := cleanRewriteResponse(response)
	if cleaned == "" {
		return query
	}
	return cleaned
}

// Expand returns exactly four query variants: three intent-level
// rephrasings of query plus one broader "step back" abstraction. On any
// LLM failure or malformed output, it pads with copies of query.
func (r *Rewriter) Expand(ctx context.Context, query string) [4]string {
	query = strings.TrimSpace(query)
	if query == "" {
		return [4]string{query, query, query, query}
	}

	prompt := buildExpandPrompt(query)
	response, err := r.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: r.model, Temperature: 0.4, MaxTokens: 300})
	if err != nil {
		return padTo4(nil, query)
	}

	variants := parseExpandResponse(response)
	return padTo4(variants, query)
}

func buildRewritePrompt(query string, history []Turn) string {
	var sb strings.Builder
	if len(history) == 0 {
		sb.WriteString("Rewrite the question below as a clear, standalone search query. Strip greetings and filler words. Preserve any reference to images (\"this image\", \"the diagram\") unchanged.\n\n")
	} else {
		sb.WriteString("Given the conversation history below, rewrite the final question as a standalone search query, resolving pronouns (\"it\", \"that\", \"this image\") against the history. Do not expand domain acronyms unless they are ambiguous.\n\nHistory:\n")
		for _, t := range history {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", t.Query, t.Response)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nRespond with only the rewritten query, one line, no preamble.")
	return sb.String()
}

func buildExpandPrompt(query string) string {
	return `Given the search query below, produce 4 lines of output:
- 3 lines, each a different phrasing of the same intent (synonyms, rephrasing, added specificity)
- 1 final line that is a broader, more general "step back" version of the query

Respond with exactly 4 lines, no numbering, no preamble.

Query: ` + query
}

// cleanRewriteResponse strips known prefixes and keeps only the first
// non-empty line, mirroring the defensive response-cleaning idiom used
// throughout this codebase for parsing free-form LLM output.
func cleanRewriteResponse(response string) string {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, prefix := range knownPrefixes {
			if strings.HasPrefix(lower, prefix) {
				line = strings.TrimSpace(line[len(prefix):])
				break
			}
		}
		line = strings.Trim(line, `"'`)
		if line != "" {
			return line
		}
	}
	return ""
}

func parseExpandResponse(response string) []string {
	var out []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "0123456789.-) ")
		line = strings.Trim(line, `"'`)
		if line != "" {
			out = append(out, line)
		}
		if len(out) == 4 {
			break
		}
	}
	return out
}

func padTo4(variants []string, fallback string) [4]string {
	var out [4]string
	for i := range out {
		if i < len(variants) {
			out[i] = variants[i]
		} else {
			out[i] = fallback
		}
	}
	return out
}

func trailingTurns(history []Turn, n int) []Turn {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
