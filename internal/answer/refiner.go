package answer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/knoguchi/omnirag/internal/llm"
)

const maxLengthRatio = 1.3
const minNumericPreservationRatio = 0.7
const weakSubScoreThreshold = 0.7
const meanAcceptThreshold = 0.85

var sourceTokenPattern = regexp.MustCompile(`\[Source:[^\]]*\]`)
var numericLiteralPattern = regexp.MustCompile(`-?\d[\d,]*\.?\d*%?`)

var generalizationMarkers = []string{
	"in general",
	"typically",
	"most experts agree",
	"generally speaking",
	"as a rule",
}

// RefineDiff records what changed between a draft and its refinement, for
// the audit trail attached to an AnswerEnvelope's metadata.
type RefineDiff struct {
	Applied        bool
	Reason         string
	WordsRemoved   int
	FillersRemoved int
	HeadingsAdded  int
	BulletsAdded   int
}

// Refiner rewrites a draft answer for flow and density, subject to a strict
// acceptance check that guards invariant I6/P4: citations and numeric
// literals must survive, and length must not balloon.
type Refiner struct {
	llm   llm.Client
	model string
}

// RefinerOption configures a Refiner.
type RefinerOption func(*Refiner)

// WithRefinerModel overrides the refinement model.
func WithRefinerModel(model string) RefinerOption {
	return func(r *Refiner) { r.model = model }
}

// NewRefiner creates a Refiner.
func NewRefiner(llmClient llm.Client, opts ...RefinerOption) *Refiner {
	r := &Refiner{llm: llmClient, model: "llama3.2"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ShouldRefine reports whether a draft is insufficient enough to warrant
// refinement: any validator sub-score below 0.7, a long draft with weak
// directness, or a mean validator score below 0.85.
func ShouldRefine(v Validation, wordCount int) bool {
	if v.Directness < weakSubScoreThreshold || v.Structure < weakSubScoreThreshold ||
		v.Actionability < weakSubScoreThreshold || v.Length < weakSubScoreThreshold {
		return true
	}
	if wordCount > 300 && v.Directness < 0.9 {
		return true
	}
	return v.Overall < meanAcceptThreshold
}

// Refine rewrites draft and returns either the rewrite (if accepted) or the
// original draft (if rejected), plus a diff describing the decision.
func (r *Refiner) Refine(ctx context.Context, draft string) (string, RefineDiff) {
	prompt := buildRefinePrompt(draft)
	rewritten, err := r.llm.Complete(ctx, []llm.Message{llm.User(prompt)}, llm.GenerateOptions{Model: r.model, Temperature: 0.2})
	if err != nil {
		return draft, RefineDiff{Applied: false, Reason: "refinement call failed"}
	}
	rewritten = cleanRefinement(rewritten)

	if reason, ok := accept(draft, rewritten); !ok {
		return draft, RefineDiff{Applied: false, Reason: reason}
	}

	diff := diffOf(draft, rewritten)
	diff.Applied = true
	return rewritten, diff
}

func accept(draft, rewritten string) (string, bool) {
	if len(rewritten) == 0 {
		return "empty rewrite", false
	}
	if float64(len(rewritten)) > maxLengthRatio*float64(len(draft)) {
		return "exceeds 1.3x length ratio", false
	}
	for _, tok := range sourceTokenPattern.FindAllString(draft, -1) {
		if !strings.Contains(rewritten, tok) {
			return "dropped a [Source: ...] citation", false
		}
	}
	if preservationRatio(draft, rewritten) < minNumericPreservationRatio {
		return "dropped too many numeric literals", false
	}
	for _, marker := range generalizationMarkers {
		if strings.Contains(strings.ToLower(rewritten), marker) && !strings.Contains(strings.ToLower(draft), marker) {
			return fmt.Sprintf("introduced generalization marker %q", marker), false
		}
	}
	return "", true
}

func preservationRatio(draft, rewritten string) float64 {
	draftNums := numericLiteralPattern.FindAllString(draft, -1)
	if len(draftNums) == 0 {
		return 1
	}
	rewrittenSet := make(map[string]int)
	for _, n := range numericLiteralPattern.FindAllString(rewritten, -1) {
		rewrittenSet[n]++
	}
	preserved := 0
	for _, n := range draftNums {
		if rewrittenSet[n] > 0 {
			rewrittenSet[n]--
			preserved++
		}
	}
	return float64(preserved) / float64(len(draftNums))
}

func diffOf(draft, rewritten string) RefineDiff {
	d := RefineDiff{}
	draftWords := len(strings.Fields(draft))
	rewrittenWords := len(strings.Fields(rewritten))
	if draftWords > rewrittenWords {
		d.WordsRemoved = draftWords - rewrittenWords
	}

	lowerDraft := strings.ToLower(draft)
	lowerRewritten := strings.ToLower(rewritten)
	for phrase := range verboseRewrites {
		d.FillersRemoved += strings.Count(lowerDraft, phrase) - strings.Count(lowerRewritten, phrase)
	}
	for _, phrase := range fillerPhrases {
		d.FillersRemoved += max0(strings.Count(lowerDraft, phrase) - strings.Count(lowerRewritten, phrase))
	}

	d.HeadingsAdded = max0(len(headingPattern.FindAllString(rewritten, -1)) - len(headingPattern.FindAllString(draft, -1)))
	d.BulletsAdded = max0(strings.Count(rewritten, "\n- ") - strings.Count(draft, "\n- "))
	return d
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func buildRefinePrompt(draft string) string {
	var sb strings.Builder
	sb.WriteString("Rewrite the following answer to improve flow and remove filler, ")
	sb.WriteString("without changing its meaning. Strict rules:\n")
	sb.WriteString("- Preserve every fact, number, and [Source: ...] citation exactly.\n")
	sb.WriteString("- Remove filler phrases and verbose constructs (e.g. \"in order to\" -> \"to\").\n")
	sb.WriteString("- Do not add hedging or generalizations not already present.\n")
	sb.WriteString("- Keep roughly the same length.\n\n")
	sb.WriteString("Answer to rewrite:\n")
	sb.WriteString(draft)
	return sb.String()
}

func cleanRefinement(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
