package answer_test

import (
	"strings"
	"testing"

	"github.com/knoguchi/omnirag/internal/answer"
	"github.com/knoguchi/omnirag/internal/classify"
	"github.com/stretchr/testify/assert"
)

func TestValidateDirectnessZeroOnForbiddenOpening(t *testing.T) {
	v := answer.Validate("Let me explain how this works in detail.", answer.SchemaFor(classify.Simple))
	assert.Zero(t, v.Directness)
}

func TestValidateDirectnessFullOnCleanOpening(t *testing.T) {
	v := answer.Validate("Engunity AI is a retrieval-augmented assistant.", answer.SchemaFor(classify.Simple))
	assert.Equal(t, 1.0, v.Directness)
}

func TestValidateStructureDetectsHeadingsAndBullets(t *testing.T) {
	text := "## Overview\n- point one\n- point two"
	v := answer.Validate(text, answer.SchemaFor(classify.SingleHop))
	assert.Equal(t, 1.0, v.Structure)
}

func TestValidateStructureZeroWithoutMarkup(t *testing.T) {
	v := answer.Validate("A plain sentence with no markup at all.", answer.SchemaFor(classify.SingleHop))
	assert.Zero(t, v.Structure)
}

func TestValidateActionabilityAlwaysFullForSimple(t *testing.T) {
	v := answer.Validate("Just a plain short answer.", answer.SchemaFor(classify.Simple))
	assert.Equal(t, 1.0, v.Actionability)
}

func TestValidateActionabilityRequiresNextStepsForSingleHop(t *testing.T) {
	v := answer.Validate("A plain answer with no cue for what to do next.", answer.SchemaFor(classify.SingleHop))
	assert.Zero(t, v.Actionability)

	withCue := answer.Validate("An answer. Next steps: review the docs.", answer.SchemaFor(classify.SingleHop))
	assert.Equal(t, 1.0, withCue.Actionability)
}

func TestValidateLengthScoreWithinBandIsFull(t *testing.T) {
	words := strings.Repeat("word ", 100)
	v := answer.Validate(words, answer.SchemaFor(classify.Simple))
	assert.Equal(t, 1.0, v.Length)
}

func TestValidateLengthScorePenalizedOutsideBand(t *testing.T) {
	words := strings.Repeat("word ", 400)
	v := answer.Validate(words, answer.SchemaFor(classify.Simple))
	assert.Less(t, v.Length, 1.0)
}

func TestValidateOverallIsMeanOfFour(t *testing.T) {
	v := answer.Validate("## Heading\nNext steps: do something.", answer.SchemaFor(classify.SingleHop))
	expected := (v.Directness + v.Structure + v.Actionability + v.Length) / 4
	assert.InDelta(t, expected, v.Overall, 1e-9)
}
