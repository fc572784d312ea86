package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/llm"
)

const defaultConfidence = 0.8
const maxCritiqueSnippetChars = 400
const maxCritiqueDocs = 5

// Critique is the self-critique verdict of C17: three binary questions plus
// a confidence score. It never blocks output, only annotates it.
type Critique struct {
	Supported  bool
	Relevant   bool
	Useful     bool
	Confidence float64
}

// Critic asks the LLM to self-assess a drafted answer against the sources
// it was grounded in.
type Critic struct {
	llm   llm.Client
	model string
}

// CriticOption configures a Critic.
type CriticOption func(*Critic)

// WithCriticModel overrides the critique model.
func WithCriticModel(model string) CriticOption {
	return func(c *Critic) { c.model = model }
}

// NewCritic creates a Critic.
func NewCritic(llmClient llm.Client, opts ...CriticOption) *Critic {
	c := &Critic{llm: llmClient, model: "llama3.2"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	supportedPattern  = regexp.MustCompile(`(?i)supported:\s*(yes|no|true|false)`)
	relevantPattern   = regexp.MustCompile(`(?i)relevant:\s*(yes|no|true|false)`)
	usefulPattern     = regexp.MustCompile(`(?i)useful:\s*(yes|no|true|false)`)
	confidencePattern = regexp.MustCompile(`(?i)confidence:\s*(0?\.\d+|1(\.0+)?|0|1)`)
)

// Critique asks whether response is supported by docs, relevant to query,
// and useful, and reports a parsed confidence. On any LLM or parse failure
// it returns a default confidence of 0.8 rather than blocking the answer.
func (c *Critic) Critique(ctx context.Context, query, response string, docs []core.SearchResult) Critique {
	prompt := buildCritiquePrompt(query, response, docs)
	reply, err := c.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: c.model, Temperature: 0, MaxTokens: 128})
	if err != nil {
		return Critique{Supported: true, Relevant: true, Useful: true, Confidence: defaultConfidence}
	}
	return parseCritique(reply)
}

func parseCritique(reply string) Critique {
	crit := Critique{
		Supported:  parseBool(supportedPattern, reply, true),
		Relevant:   parseBool(relevantPattern, reply, true),
		Useful:     parseBool(usefulPattern, reply, true),
		Confidence: defaultConfidence,
	}
	if m := confidencePattern.FindStringSubmatch(reply); m != nil {
		var conf float64
		if _, err := fmt.Sscanf(m[1], "%f", &conf); err == nil {
			crit.Confidence = conf
		}
	}
	return crit
}

func parseBool(pattern *regexp.Regexp, text string, fallback bool) bool {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	switch strings.ToLower(m[1]) {
	case "yes", "true":
		return true
	case "no", "false":
		return false
	}
	return fallback
}

func buildCritiquePrompt(query, response string, docs []core.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Evaluate the following answer against its sources.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer:\n")
	sb.WriteString(response)
	sb.WriteString("\n\nSources:\n")
	n := docs
	if len(n) > maxCritiqueDocs {
		n = n[:maxCritiqueDocs]
	}
	for i, d := range n {
		snippet := d.Text
		if len(snippet) > maxCritiqueSnippetChars {
			snippet = snippet[:maxCritiqueSnippetChars] + "..."
		}
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, snippet)
	}
	sb.WriteString(`
Answer exactly these four lines:
Supported: yes|no
Relevant: yes|no
Useful: yes|no
Confidence: <a number between 0 and 1>`)
	return sb.String()
}
