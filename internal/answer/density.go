package answer

import (
	"regexp"
	"strings"
)

const longSentenceWords = 30
const longParagraphWords = 150

// fillerPhrases is a closed list of padding phrases that add no information.
var fillerPhrases = []string{
	"it is important to note that",
	"it should be noted that",
	"as previously mentioned",
	"as mentioned before",
	"in today's world",
	"in this day and age",
	"needless to say",
	"at the end of the day",
	"when all is said and done",
	"for all intents and purposes",
	"basically",
	"essentially",
	"actually",
	"really",
	"very",
	"quite",
	"just",
	"simply",
	"in order to",
	"due to the fact that",
}

// verboseRewrites maps a verbose construct to its concise replacement. The
// refiner's diff bookkeeping (diffOf) counts how many of these a rewrite
// removed; AnalyzeDensity does not read it.
var verboseRewrites = map[string]string{
	"in order to":          "to",
	"due to the fact that": "because",
	"at this point in time": "now",
	"in the event that":    "if",
	"a large number of":    "many",
	"is able to":           "can",
	"has the ability to":   "can",
	"with regard to":       "about",
	"in spite of the fact that": "although",
}

// Density is the structural-density score of C16.
type Density struct {
	FillerWordCount int
	TotalWords      int
	LongSentences   int
	LongParagraphs  int
	Score           float64
}

// AnalyzeDensity counts filler phrases, long sentences, and long
// paragraphs. Score is max(0, 1 - filler_words/total_words). Verbose
// constructs (verboseRewrites) are not counted and have no field in Density.
func AnalyzeDensity(text string) Density {
	lower := strings.ToLower(text)
	words := strings.Fields(text)
	total := len(words)

	fillerWords := 0
	for _, phrase := range fillerPhrases {
		count := strings.Count(lower, phrase)
		if count == 0 {
			continue
		}
		fillerWords += count * len(strings.Fields(phrase))
	}

	sentences := splitSentences(text)
	longSentences := 0
	for _, s := range sentences {
		if len(strings.Fields(s)) > longSentenceWords {
			longSentences++
		}
	}

	paragraphs := strings.Split(text, "\n\n")
	longParagraphs := 0
	for _, p := range paragraphs {
		if len(strings.Fields(p)) > longParagraphWords {
			longParagraphs++
		}
	}

	score := 1.0
	if total > 0 {
		score = 1 - float64(fillerWords)/float64(total)
	}
	if score < 0 {
		score = 0
	}

	return Density{
		FillerWordCount: fillerWords,
		TotalWords:      total,
		LongSentences:   longSentences,
		LongParagraphs:  longParagraphs,
		Score:           score,
	}
}

var sentenceSplitPattern = regexp.MustCompile(`(?:[.!?]+\s+|\n+)`)

func splitSentences(text string) []string {
	parts := sentenceSplitPattern.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

var aiishOpenings = []string{
	"as an ai",
	"i'm an ai",
	"i am an ai",
	"as a language model",
	"i don't have personal",
	"i cannot browse the internet",
}

var metaCommentaryPatterns = []string{
	"in this response",
	"in this answer",
	"this response will",
	"let's break this down",
	"to summarize what i said",
}

var weakHedges = []string{
	"it's possible that",
	"it might be the case that",
	"perhaps, maybe",
	"i could be wrong, but",
}

const naturalnessFloor = 0.5
const naturalnessPenaltyPerViolation = 0.05

// Naturalness is the prose-naturalness score of C16: how un-LLM-like the
// text reads, penalized per detected violation.
type Naturalness struct {
	Violations int
	Score      float64
}

// AnalyzeNaturalness detects AI-ish openings, meta-commentary, and weak
// hedges, applying a 5%-per-violation penalty with a 0.5 floor.
func AnalyzeNaturalness(text string) Naturalness {
	lower := strings.ToLower(text)
	violations := 0
	for _, p := range aiishOpenings {
		if strings.Contains(lower, p) {
			violations++
		}
	}
	for _, p := range metaCommentaryPatterns {
		if strings.Contains(lower, p) {
			violations++
		}
	}
	for _, p := range weakHedges {
		if strings.Contains(lower, p) {
			violations++
		}
	}

	score := 1 - float64(violations)*naturalnessPenaltyPerViolation
	if score < naturalnessFloor {
		score = naturalnessFloor
	}
	return Naturalness{Violations: violations, Score: score}
}
