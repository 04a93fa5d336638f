package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medcode-cli/internal/llm"
	"github.com/sells-group/medcode-cli/internal/model"
)

func cptQuestion() *model.Question {
	return &model.Question{
		Number:  1,
		Text:    "Excision of a 0.4 cm benign lesion on the trunk. Which CPT code is reported?",
		Options: options("11400", "11600", "17000", "10060"),
		Family:  model.FamilyCPT,
	}
}

func TestAnswer_Parsed(t *testing.T) {
	m := newMockModel("claude-sonnet-4-5")
	refs := []CodeReference{{Family: model.FamilyCPT, Code: "11400", Description: "Excision, benign lesion, trunk; 0.5 cm or less"}}

	m.On("Complete", mock.Anything, mock.MatchedBy(func(r llm.Request) bool {
		return r.Phase == "answer" &&
			strings.Contains(r.Prompt, "Question 1 (CPT)") &&
			strings.Contains(r.Prompt, "- CPT 11400: Excision, benign lesion, trunk; 0.5 cm or less") &&
			strings.Contains(r.Prompt, "Confidence: <integer 1-10>")
	})).Return(reply("Answer: A\nConfidence: 9\nReasoning: Benign excision of the trunk under 0.5 cm."), nil)

	rec := NewAnswerer(m).Answer(context.Background(), cptQuestion(), refs)

	assert.Equal(t, "A", rec.Choice)
	assert.Equal(t, 9, rec.Confidence)
	assert.Equal(t, "Benign excision of the trunk under 0.5 cm.", rec.Reasoning)
	assert.Equal(t, "claude-sonnet-4-5", rec.Model)
	assert.False(t, rec.Fallback)
	m.AssertExpectations(t)
}

func TestAnswer_FallbackOnProviderError(t *testing.T) {
	m := newMockModel("gpt-4o")
	m.On("Complete", mock.Anything, phase("answer")).Return(nil, errors.New("503 service unavailable"))

	rec := NewAnswerer(m).Answer(context.Background(), cptQuestion(), nil)

	assert.Equal(t, DefaultChoice, rec.Choice)
	assert.Equal(t, DefaultConfidence, rec.Confidence)
	assert.True(t, rec.Fallback)
	assert.Equal(t, "gpt-4o", rec.Model)
	assert.Contains(t, rec.Reasoning, "processing error")
}

func TestAnswer_FallbackOnMissingConfidence(t *testing.T) {
	m := newMockModel("gpt-4o")
	m.On("Complete", mock.Anything, phase("answer")).Return(reply("Answer: C\nReasoning: 17000 is destruction."), nil)

	rec := NewAnswerer(m).Answer(context.Background(), cptQuestion(), nil)

	assert.Equal(t, "A", rec.Choice)
	assert.Equal(t, 5, rec.Confidence)
	assert.True(t, rec.Fallback)
	assert.Contains(t, rec.Reasoning, "parse failure")
}

func TestAnswer_ProseAfterLabelFallsBackAndEscalates(t *testing.T) {
	m := newMockModel("gpt-4o")
	m.On("Complete", mock.Anything, phase("answer")).Return(reply("Answer: a modifier 59 is not needed, so option C.\nConfidence: 7\nReasoning: x"), nil)

	q := cptQuestion()
	rec := NewAnswerer(m).Answer(context.Background(), q, nil)
	require.True(t, rec.Fallback)
	assert.Equal(t, 5, rec.Confidence)

	q.Answer = &rec
	assert.True(t, NewVerifier(DefaultVerifyThreshold).NeedsVerification(q))
}

func TestFallbackAnswer(t *testing.T) {
	rec := FallbackAnswer("m", "panic: boom")
	require.True(t, rec.Fallback)
	assert.Equal(t, model.AnswerRecord{
		Choice:     "A",
		Confidence: 5,
		Reasoning:  "default answer after panic: boom",
		Model:      "m",
		Fallback:   true,
	}, rec)
}
