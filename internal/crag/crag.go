// Package crag implements the retrieval evaluator and Corrective RAG
// controller (C9): it grades whether retrieved evidence actually supports
// answering the query, and when it doesn't, falls back to a web search
// provider rather than answering ungrounded.
package crag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/knoguchi/omnirag/internal/core"
	"github.com/knoguchi/omnirag/internal/llm"
	"github.com/knoguchi/omnirag/internal/websearch"
)

// Grade is the evaluator's verdict on a set of retrieved results.
type Grade string

const (
	Correct   Grade = "CORRECT"
	Ambiguous Grade = "AMBIGUOUS"
	Incorrect Grade = "INCORRECT"
)

const maxSnippetChars = 500
const topNForGrading = 3

var gradeTokenPattern = regexp.MustCompile(`(?i)\b(CORRECT|AMBIGUOUS|INCORRECT)\b`)

// Outcome is the result of running the controller over a query's retrieved
// evidence.
type Outcome struct {
	Grade         Grade
	Documents     []core.SearchResult
	UsedWebSearch bool
}

// Controller evaluates retrieved evidence and corrects it via web search
// when needed.
type Controller struct {
	llm             llm.Client
	search          websearch.Provider
	model           string
	fastPathScore   float32
	ambiguousLow    float32
}

// Option configures a Controller.
type Option func(*Controller)

// WithModel overrides the grading model.
func WithModel(model string) Option {
	return func(c *Controller) { c.model = model }
}

// WithThresholds overrides the fast-path and ambiguous-low fused-score
// thresholds (DESIGN.md Open Question #2).
func WithThresholds(fastPath, ambiguousLow float32) Option {
	return func(c *Controller) {
		c.fastPathScore = fastPath
		c.ambiguousLow = ambiguousLow
	}
}

// New creates a Controller. search may be a websearch.StubProvider when no
// backend is configured; when web search yields nothing, AMBIGUOUS/INCORRECT
// grades are kept and the originally retrieved documents are returned with
// UsedWebSearch false, rather than failing the request.
func New(llmClient llm.Client, search websearch.Provider, opts ...Option) *Controller {
	c := &Controller{
		llm:           llmClient,
		search:        search,
		model:         "llama3.2",
		fastPathScore: 0.0055,
		ambiguousLow:  0.0025,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Evaluate grades results against query: a fast path short-circuits to
// CORRECT when the best fused score clears fastPathScore; otherwise the LLM
// grades the top snippets, falling back to a score-banded heuristic if the
// response can't be parsed.
func (c *Controller) Evaluate(ctx context.Context, query string, results []core.SearchResult) Grade {
	if len(results) == 0 {
		return Incorrect
	}

	best := results[0].Score
	for _, r := range results[1:] {
		if r.Score > best {
			best = r.Score
		}
	}
	if best >= c.fastPathScore {
		return Correct
	}

	grade, err := c.gradeWithLLM(ctx, query, results)
	if err != nil {
		return c.heuristicGrade(best)
	}
	return grade
}

// Run evaluates results and applies the CRAG correction policy: CORRECT
// keeps results as-is, AMBIGUOUS unions them with web-search results, and
// INCORRECT replaces them with web-search results entirely.
func (c *Controller) Run(ctx context.Context, query string, results []core.SearchResult, k int) Outcome {
	grade := c.Evaluate(ctx, query, results)

	switch grade {
	case Correct:
		return Outcome{Grade: grade, Documents: results}
	case Ambiguous:
		webDocs, err := c.webResults(ctx, query, k)
		if err != nil || len(webDocs) == 0 {
			return Outcome{Grade: grade, Documents: results}
		}
		return Outcome{Grade: grade, Documents: append(append([]core.SearchResult{}, results...), webDocs...), UsedWebSearch: true}
	case Incorrect:
		webDocs, err := c.webResults(ctx, query, k)
		if err != nil || len(webDocs) == 0 {
			return Outcome{Grade: grade, Documents: results}
		}
		return Outcome{Grade: grade, Documents: webDocs, UsedWebSearch: true}
	default:
		return Outcome{Grade: grade, Documents: results}
	}
}

func (c *Controller) webResults(ctx context.Context, query string, k int) ([]core.SearchResult, error) {
	hits, err := c.search.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrWebSearch, err)
	}
	out := make([]core.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = core.SearchResult{
			Chunk:  core.Chunk{ID: h.URL, Text: h.Title + "\n" + h.Snippet},
			Score:  0,
			Source: "web",
		}
	}
	return out, nil
}

func (c *Controller) gradeWithLLM(ctx context.Context, query string, results []core.SearchResult) (Grade, error) {
	top := results
	if len(top) > topNForGrading {
		top = top[:topNForGrading]
	}

	prompt := buildGradePrompt(query, top)
	response, err := c.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: c.model, Temperature: 0, MaxTokens: 16})
	if err != nil {
		return "", fmt.Errorf("%w: crag grading: %v", core.ErrLLM, err)
	}

	if match := gradeTokenPattern.FindString(response); match != "" {
		return Grade(strings.ToUpper(match)), nil
	}
	return "", fmt.Errorf("could not parse grade token from response")
}

func (c *Controller) heuristicGrade(bestScore float32) Grade {
	if bestScore >= c.ambiguousLow {
		return Ambiguous
	}
	return Incorrect
}

func buildGradePrompt(query string, results []core.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("You are grading whether retrieved passages support answering a question.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPassages:\n")
	for i, r := range results {
		snippet := r.Text
		if len(snippet) > maxSnippetChars {
			snippet = snippet[:maxSnippetChars] + "..."
		}
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, snippet)
	}
	sb.WriteString(`Grade the passages as a whole:
CORRECT - the passages fully support answering the question
AMBIGUOUS - the passages partially support it, more evidence would help
INCORRECT - the passages do not support answering the question

Respond with ONLY one word: CORRECT, AMBIGUOUS, or INCORRECT.`)
	return sb.String()
}
