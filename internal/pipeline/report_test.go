package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/medcode-cli/internal/model"
)

func TestFormatReport(t *testing.T) {
	fb := FallbackAnswer("claude", "parse failure")
	qs := []model.Question{
		scored(1, model.FamilyCPT, "A", "claude"),
		scored(2, model.FamilyICD10, "B", "claude"),
		{Number: 3, Family: model.FamilyGeneral, Answer: &fb},
	}
	qs[1].Verified = &model.VerifiedAnswer{AnswerRecord: model.AnswerRecord{Choice: "C", Confidence: 7, Model: "o3"}, Strategy: StrategyReasoning}

	report := Score(qs, model.AnswerKey{1: "A", 2: "D", 3: "B", 4: "C"})
	report.Log.RunID = "run-7"
	report.Log.CreatedAt = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	out := FormatReport(report, qs)

	assert.Contains(t, out, "Run: run-7")
	assert.Contains(t, out, "Scored: 2026-03-01 09:30:00 UTC")
	assert.Contains(t, out, "- Overall: 1/4 (25%)")
	assert.Contains(t, out, "- Verified: 1")
	assert.Contains(t, out, "- Default answers: 1")
	assert.NotContains(t, out, "Not in key")
	assert.Contains(t, out, "| CPT | 1 | 1 | 100% |")
	assert.Contains(t, out, "| HCPCS | 0 | 0 | 0% |")
	assert.Contains(t, out, "| o3 | 0 | 1 | 0% |")
	assert.Contains(t, out, "- Q2: submitted C, correct D [ICD-10] (verified by reasoning)")
	assert.Contains(t, out, "- Q3: submitted A, correct B [GENERAL] (default answer)")
	assert.Contains(t, out, "- Q4: submitted -, correct C (not submitted)")
}

func TestFormatReport_AllCorrect(t *testing.T) {
	qs := []model.Question{scored(1, model.FamilyHCPCS, "B", "gpt")}
	out := FormatReport(Score(qs, model.AnswerKey{1: "B"}), qs)
	assert.Contains(t, out, "## Incorrect\nNone.\n")
}

func TestFormatHistory(t *testing.T) {
	assert.Equal(t, "No performance history.\n", FormatHistory(nil))

	logs := []model.PerformanceLog{{
		RunID:     "run-2",
		CreatedAt: time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC),
		Overall:   model.Stat{Correct: 3, Total: 4, Accuracy: 75},
		ByFamily: map[model.Family]model.Stat{
			model.FamilyCPT:   {Correct: 2, Total: 2, Accuracy: 100},
			model.FamilyHCPCS: {},
			model.FamilyICD10: {Correct: 1, Total: 2, Accuracy: 50},
		},
	}}
	assert.Equal(t, "2026-03-02 14:05  run-2  3/4 (75%)  CPT 100%  ICD-10 50%\n", FormatHistory(logs))
}
