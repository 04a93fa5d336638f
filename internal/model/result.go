package model

import (
	"sort"
	"time"
)

// AnswerKey maps question number to the correct option letter.
type AnswerKey map[int]string

// Numbers returns the keyed question numbers in ascending order.
func (k AnswerKey) Numbers() []int {
	out := make([]int, 0, len(k))
	for n := range k {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// VerificationAttempt is the ephemeral record of one escalation strategy
// invocation. Answer is set only when Parsed is true.
type VerificationAttempt struct {
	Strategy string        `json:"strategy"`
	Raw      string        `json:"-"`
	Parsed   bool          `json:"parsed"`
	Error    string        `json:"error,omitempty"`
	Answer   *AnswerRecord `json:"answer,omitempty"`
}

// TestResult is the scored outcome for one keyed question.
type TestResult struct {
	Number    int    `json:"number"`
	Submitted string `json:"submitted"`
	Correct   string `json:"correct"`
	IsCorrect bool   `json:"is_correct"`
	Family    Family `json:"family,omitempty"`
	Model     string `json:"model,omitempty"`
	Verified  bool   `json:"verified"`
}

// Stat is a correct/total tally with a rounded percentage.
type Stat struct {
	Correct  int `json:"correct"`
	Total    int `json:"total"`
	Accuracy int `json:"accuracy"`
}

// PerformanceLog is the derived view of one scoring pass. It is recomputed in
// full every pass and appended to history, never merged.
type PerformanceLog struct {
	RunID      string          `json:"run_id"`
	CreatedAt  time.Time       `json:"created_at"`
	Overall    Stat            `json:"overall"`
	ByFamily   map[Family]Stat `json:"by_family"`
	ByModel    map[string]Stat `json:"by_model"`
	Verified   int             `json:"verified"`
	Unverified int             `json:"unverified"`
	Defaulted  int             `json:"defaulted"`
	Unkeyed    int             `json:"unkeyed"`
}

// ScoreReport bundles per-question results with the aggregate log.
type ScoreReport struct {
	Results []TestResult   `json:"results"`
	Log     PerformanceLog `json:"log"`
}
