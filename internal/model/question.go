package model

import "strings"

// Option is one lettered answer choice of a question.
type Option struct {
	Letter string `json:"letter" yaml:"letter"`
	Text   string `json:"text" yaml:"text"`
}

// Question is a single multiple-choice exam item. Number is unique within a
// run. Family, Answer, and Verified are filled in as the question moves
// through the pipeline. Escalated records that the question entered
// verification; Escalated with a nil Verified means every strategy failed.
type Question struct {
	Number    int             `json:"number" yaml:"number"`
	Text      string          `json:"text" yaml:"text"`
	Options   []Option        `json:"options" yaml:"options"`
	Family    Family          `json:"family,omitempty" yaml:"family,omitempty"`
	Codes     []string        `json:"codes,omitempty" yaml:"codes,omitempty"`
	Answer    *AnswerRecord   `json:"answer,omitempty" yaml:"answer,omitempty"`
	Verified  *VerifiedAnswer `json:"verified,omitempty" yaml:"verified,omitempty"`
	Escalated bool            `json:"escalated,omitempty" yaml:"escalated,omitempty"`
}

// AnswerRecord is a chosen option with its self-reported confidence (1-10).
// Fallback marks a synthesized default produced when the model response
// could not be used.
type AnswerRecord struct {
	Choice     string `json:"choice" yaml:"choice"`
	Confidence int    `json:"confidence" yaml:"confidence"`
	Reasoning  string `json:"reasoning" yaml:"reasoning"`
	Model      string `json:"model" yaml:"model"`
	Fallback   bool   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// VerifiedAnswer is an answer produced by an escalation strategy. Strategy
// names the strategy that produced it.
type VerifiedAnswer struct {
	AnswerRecord `yaml:",inline"`
	Strategy     string `json:"strategy" yaml:"strategy"`
}

// OptionTexts returns the option texts in order.
func (q *Question) OptionTexts() []string {
	out := make([]string, len(q.Options))
	for i, o := range q.Options {
		out[i] = o.Text
	}
	return out
}

// Option returns the option with the given letter.
func (q *Question) Option(letter string) (Option, bool) {
	for _, o := range q.Options {
		if strings.EqualFold(o.Letter, letter) {
			return o, true
		}
	}
	return Option{}, false
}

// Final returns the verified answer when present, else the initial answer.
// Returns nil if the question was never answered.
func (q *Question) Final() *AnswerRecord {
	if q.Verified != nil {
		return &q.Verified.AnswerRecord
	}
	return q.Answer
}

// FinalChoice returns the letter of the final answer or "" if unanswered.
func (q *Question) FinalChoice() string {
	if a := q.Final(); a != nil {
		return a.Choice
	}
	return ""
}

// IsValidChoice reports whether s is a single option letter A-D.
func IsValidChoice(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'D'
}
