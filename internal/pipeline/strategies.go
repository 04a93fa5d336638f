package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medcode-cli/internal/llm"
	"github.com/sells-group/medcode-cli/internal/model"
)

// Policy decides how a successful verification sets confidence.
type Policy int

const (
	// Replace takes the strategy's confidence as-is.
	Replace Policy = iota
	// Confirm treats the strategy as a second opinion: when it agrees with
	// the current answer the higher confidence is kept, when it disagrees
	// its answer and confidence replace the current ones.
	Confirm
)

func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Confirm:
		return "confirm"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Apply merges a parsed verification into the prior answer under the policy.
func (p Policy) Apply(prior model.AnswerRecord, v Verification) model.AnswerRecord {
	out := model.AnswerRecord{
		Choice:     v.FinalAnswer,
		Confidence: v.Confidence,
		Reasoning:  v.ReasoningSummary,
	}
	if p == Confirm && v.FinalAnswer == prior.Choice && prior.Confidence > out.Confidence {
		out.Confidence = prior.Confidence
	}
	return out
}

// Built-in strategy names, in default chain order.
const (
	StrategyReasoning = "reasoning"
	StrategySearch    = "search"
	StrategyFallback  = "fallback"
)

// StrategySpec is the data half of a strategy: what it asks for and how its
// result is merged.
type StrategySpec struct {
	Name         string
	Policy       Policy
	System       string
	Instructions string
}

var builtinStrategies = map[string]StrategySpec{
	StrategyReasoning: {
		Name:   StrategyReasoning,
		Policy: Replace,
		System: "You are a senior medical coding auditor. Work through the coding guidelines step by step before deciding.",
		Instructions: "Re-derive the answer from first principles: identify the service or diagnosis described, " +
			"apply the relevant CPT, ICD-10-CM, or HCPCS guidelines, and eliminate each wrong option explicitly.",
	},
	StrategySearch: {
		Name:   StrategySearch,
		Policy: Replace,
		System: "You are a medical coding researcher. Verify answers against current official coding sources.",
		Instructions: "Look up the codes and guidelines involved in authoritative sources (CMS, AMA, CDC ICD-10-CM, AAPC) " +
			"and choose the option they support.",
	},
	StrategyFallback: {
		Name:         StrategyFallback,
		Policy:       Confirm,
		System:       "You are a medical coding reviewer giving a second opinion.",
		Instructions: "Review the question and the previous answer. Confirm it if it is correct, otherwise pick the correct option.",
	},
}

// LookupStrategy returns the built-in spec for name.
func LookupStrategy(name string) (StrategySpec, bool) {
	s, ok := builtinStrategies[name]
	return s, ok
}

// Strategy is one link of the verification chain: a spec bound to a model.
type Strategy struct {
	StrategySpec
	Model llm.Model
}

// NewStrategy binds the built-in spec called name to m.
func NewStrategy(name string, m llm.Model) (Strategy, error) {
	spec, ok := LookupStrategy(name)
	if !ok {
		return Strategy{}, eris.Errorf("pipeline: unknown verification strategy %q", name)
	}
	return Strategy{StrategySpec: spec, Model: m}, nil
}

// Attempt runs the strategy once. The attempt is always returned; the error
// is non-nil when the provider failed or the response did not parse, in
// which case the chain moves on.
func (s Strategy) Attempt(ctx context.Context, q *model.Question, refs []CodeReference) (model.VerificationAttempt, error) {
	attempt := model.VerificationAttempt{Strategy: s.Name}

	resp, err := s.Model.Complete(ctx, llm.Request{
		System: s.System,
		Prompt: verifyPrompt(q, refs, q.Answer, s.Instructions),
		Phase:  "verify:" + s.Name,
	})
	if err != nil {
		attempt.Error = err.Error()
		return attempt, eris.Wrapf(err, "pipeline: strategy %s", s.Name)
	}
	attempt.Raw = resp.Text

	v, err := ParseVerification(resp.Text)
	if err != nil {
		attempt.Error = err.Error()
		return attempt, eris.Wrapf(err, "pipeline: strategy %s", s.Name)
	}

	var prior model.AnswerRecord
	if q.Answer != nil {
		prior = *q.Answer
	}
	rec := s.Policy.Apply(prior, v)
	rec.Model = s.Model.Name()
	attempt.Parsed = true
	attempt.Answer = &rec
	return attempt, nil
}
