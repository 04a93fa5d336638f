package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medcode-cli/internal/model"
)

func scored(n int, family model.Family, choice, modelID string) model.Question {
	return model.Question{
		Number: n,
		Family: family,
		Answer: &model.AnswerRecord{Choice: choice, Confidence: 7, Model: modelID},
	}
}

func TestScore_MissingSubmissionIsIncorrect(t *testing.T) {
	qs := Submissions(map[int]string{1: "B", 2: "A"})
	key := model.AnswerKey{1: "B", 2: "C", 3: "D"}

	report := Score(qs, key)

	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[0].IsCorrect)
	assert.False(t, report.Results[1].IsCorrect)
	assert.Equal(t, model.TestResult{Number: 3, Correct: "D"}, report.Results[2])

	assert.Equal(t, model.Stat{Correct: 1, Total: 3, Accuracy: 33}, report.Log.Overall)
}

func TestScore_FamilyAndModelBuckets(t *testing.T) {
	qs := []model.Question{
		scored(1, model.FamilyCPT, "A", "claude"),
		scored(2, model.FamilyCPT, "B", "claude"),
		scored(3, model.FamilyICD10, "C", "gpt"),
	}
	qs[1].Verified = &model.VerifiedAnswer{
		AnswerRecord: model.AnswerRecord{Choice: "D", Confidence: 8, Model: "sonar"},
		Strategy:     StrategySearch,
	}
	key := model.AnswerKey{1: "A", 2: "D", 3: "A"}

	l := Score(qs, key).Log

	assert.Equal(t, model.Stat{Correct: 2, Total: 3, Accuracy: 67}, l.Overall)
	assert.Equal(t, model.Stat{Correct: 2, Total: 2, Accuracy: 100}, l.ByFamily[model.FamilyCPT])
	assert.Equal(t, model.Stat{Correct: 0, Total: 1, Accuracy: 0}, l.ByFamily[model.FamilyICD10])

	// Empty buckets are present and report 0%.
	require.Contains(t, l.ByFamily, model.FamilyHCPCS)
	assert.Equal(t, model.Stat{}, l.ByFamily[model.FamilyHCPCS])
	assert.Equal(t, model.Stat{}, l.ByFamily[model.FamilyGeneral])

	assert.Equal(t, map[string]model.Stat{
		"claude": {Correct: 1, Total: 1, Accuracy: 100},
		"sonar":  {Correct: 1, Total: 1, Accuracy: 100},
		"gpt":    {Correct: 0, Total: 1, Accuracy: 0},
	}, l.ByModel)
	assert.Equal(t, 1, l.Verified)
}

func TestScore_Counters(t *testing.T) {
	fb := FallbackAnswer("claude", "parse failure")
	qs := []model.Question{
		{Number: 1, Family: model.FamilyGeneral, Answer: &fb},
		{Number: 2, Family: model.FamilyHCPCS, Answer: &model.AnswerRecord{Choice: "B", Confidence: 3, Model: "claude"}, Escalated: true},
		{Number: 9, Family: model.FamilyCPT, Answer: &model.AnswerRecord{Choice: "C", Confidence: 9, Model: "claude"}},
	}
	l := Score(qs, model.AnswerKey{1: "A", 2: "B"}).Log

	assert.Equal(t, 1, l.Defaulted)
	assert.Equal(t, 1, l.Unverified)
	assert.Equal(t, 0, l.Verified)
	assert.Equal(t, 1, l.Unkeyed)
	assert.Equal(t, model.Stat{Correct: 2, Total: 2, Accuracy: 100}, l.Overall)
	assert.Equal(t, model.Stat{}, l.ByFamily[model.FamilyCPT], "unkeyed question is not scored")
}

func TestScore_EmptyKey(t *testing.T) {
	l := Score(nil, model.AnswerKey{}).Log
	assert.Equal(t, model.Stat{}, l.Overall)
	assert.Len(t, l.ByFamily, len(model.AllFamilies))
	assert.Empty(t, l.ByModel)
	assert.False(t, l.CreatedAt.IsZero())
}

func TestScore_Recomputes(t *testing.T) {
	qs := []model.Question{scored(1, model.FamilyCPT, "A", "claude")}
	key := model.AnswerKey{1: "A"}

	first := Score(qs, key)
	second := Score(qs, key)
	assert.Equal(t, first.Log.Overall, second.Log.Overall)
	assert.Equal(t, first.Log.ByFamily, second.Log.ByFamily)
}

func TestPercent(t *testing.T) {
	tests := []struct {
		correct, total, want int
	}{
		{0, 0, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{5, 5, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.correct, tt.total), "%d/%d", tt.correct, tt.total)
	}
}

func TestSubmissions(t *testing.T) {
	qs := Submissions(map[int]string{3: "C", 1: "A"})
	require.Len(t, qs, 2)
	assert.Equal(t, 1, qs[0].Number)
	assert.Equal(t, "C", qs[1].FinalChoice())
}
