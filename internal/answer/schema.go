// Package answer is the answer-side half of the pipeline (C14-C18): the
// structural schema and validator, the safety-bounded refiner, the density
// and naturalness heuristics, self-critique, and the rolling quality-metrics
// logger.
package answer

import (
	"regexp"
	"strings"

	"github.com/knoguchi/omnirag/internal/classify"
)

// LengthBand is the target word-count range for a complexity tier.
type LengthBand struct {
	Min, Max int
}

// Schema is the structural contract an answer of a given complexity must
// satisfy: a direct opening, a structured body, optional next-steps and
// edge-case sections, and citations when evidence exists.
type Schema struct {
	Complexity       classify.Complexity
	RequireNextSteps bool
	Length           LengthBand
}

// Schemas is keyed by complexity; every schema mandates a direct opening
// (no filler preamble), a structured body, and citations when evidence
// exists. SINGLE_HOP and MULTI_HOP additionally require a next-steps
// section.
var Schemas = map[classify.Complexity]Schema{
	classify.Simple: {
		Complexity:       classify.Simple,
		RequireNextSteps: false,
		Length:           LengthBand{Min: 50, Max: 150},
	},
	classify.SingleHop: {
		Complexity:       classify.SingleHop,
		RequireNextSteps: true,
		Length:           LengthBand{Min: 150, Max: 450},
	},
	classify.MultiHop: {
		Complexity:       classify.MultiHop,
		RequireNextSteps: true,
		Length:           LengthBand{Min: 300, Max: 1000},
	},
}

// SchemaFor returns the schema for a complexity, defaulting to SingleHop's
// band when the complexity is unrecognized.
func SchemaFor(c classify.Complexity) Schema {
	if s, ok := Schemas[c]; ok {
		return s
	}
	return Schemas[classify.SingleHop]
}

var forbiddenOpenings = []string{
	"let me",
	"i'd be happy to",
	"i would be happy to",
	"sure,",
	"sure!",
	"great question",
	"certainly,",
	"of course,",
	"as an ai",
	"i think",
}

var headingPattern = regexp.MustCompile(`(?m)^(#{1,6}\s|\d+\.\s|[-*]\s)`)

var nextStepsPattern = regexp.MustCompile(`(?i)next steps?|recommend(ed|ation)?|you (should|could|might want to)|consider`)

const directnessWindowChars = 100

// Validation is the four structural sub-scores of C14.
type Validation struct {
	Directness   float64
	Structure    float64
	Actionability float64
	Length       float64
	Overall      float64
}

// Validate scores a draft answer against its schema's structural contract.
// Overall is the mean of the four sub-dimensions, a deterministic function
// of (text, schema) per invariant P8.
func Validate(text string, schema Schema) Validation {
	v := Validation{
		Directness:    directness(text),
		Structure:     structure(text),
		Actionability: actionability(text, schema),
		Length:        lengthScore(text, schema.Length),
	}
	v.Overall = (v.Directness + v.Structure + v.Actionability + v.Length) / 4
	return v
}

func directness(text string) float64 {
	window := text
	if len(window) > directnessWindowChars {
		window = window[:directnessWindowChars]
	}
	lower := strings.ToLower(window)
	for _, phrase := range forbiddenOpenings {
		if strings.Contains(lower, phrase) {
			return 0
		}
	}
	return 1
}

func structure(text string) float64 {
	if headingPattern.MatchString(text) {
		return 1
	}
	return 0
}

func actionability(text string, schema Schema) float64 {
	if !schema.RequireNextSteps {
		return 1
	}
	if nextStepsPattern.MatchString(text) {
		return 1
	}
	return 0
}

func lengthScore(text string, band LengthBand) float64 {
	words := len(strings.Fields(text))
	if words >= band.Min && words <= band.Max {
		return 1
	}
	var distance, span int
	if words < band.Min {
		distance = band.Min - words
		span = band.Min
	} else {
		distance = words - band.Max
		span = band.Max
	}
	if span == 0 {
		return 0
	}
	score := 1 - float64(distance)/float64(span)
	if score < 0 {
		return 0
	}
	return score
}
