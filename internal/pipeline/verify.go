package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/model"
)

// DefaultVerifyThreshold is the confidence below which answers are escalated.
const DefaultVerifyThreshold = 6

// Verifier runs the escalation chain for low-confidence answers.
type Verifier struct {
	strategies []Strategy
	threshold  int
}

// NewVerifier creates a Verifier trying strategies in order. A threshold
// outside 1-10 falls back to DefaultVerifyThreshold.
func NewVerifier(threshold int, strategies ...Strategy) *Verifier {
	if threshold < 1 || threshold > 10 {
		threshold = DefaultVerifyThreshold
	}
	return &Verifier{strategies: strategies, threshold: threshold}
}

// Strategies returns the chain's strategy names in order.
func (v *Verifier) Strategies() []string {
	names := make([]string, len(v.strategies))
	for i, s := range v.strategies {
		names[i] = s.Name
	}
	return names
}

// NeedsVerification reports whether q's answer is below the threshold.
func (v *Verifier) NeedsVerification(q *model.Question) bool {
	return q.Answer != nil && q.Answer.Confidence < v.threshold
}

// Verify walks the chain until a strategy succeeds and records that result as
// q.Verified. q.Answer is never modified. When every strategy fails q is left
// unverified. The attempts made are returned in order.
func (v *Verifier) Verify(ctx context.Context, q *model.Question, refs []CodeReference) []model.VerificationAttempt {
	if !v.NeedsVerification(q) {
		return nil
	}
	q.Escalated = true
	log := zap.L().With(zap.Int("question", q.Number), zap.Int("confidence", q.Answer.Confidence))

	attempts := make([]model.VerificationAttempt, 0, len(v.strategies))
	for _, s := range v.strategies {
		if ctx.Err() != nil {
			log.Warn("verify: context done, stopping chain", zap.Error(ctx.Err()))
			break
		}
		attempt, err := s.Attempt(ctx, q, refs)
		attempts = append(attempts, attempt)
		if err != nil {
			log.Warn("verify: strategy failed, trying next", zap.String("strategy", s.Name), zap.Error(err))
			continue
		}

		q.Verified = &model.VerifiedAnswer{AnswerRecord: *attempt.Answer, Strategy: s.Name}
		log.Info("verify: answer verified",
			zap.String("strategy", s.Name),
			zap.String("policy", s.Policy.String()),
			zap.String("initial", q.Answer.Choice),
			zap.String("verified", attempt.Answer.Choice),
			zap.Int("verified_confidence", attempt.Answer.Confidence),
		)
		return attempts
	}

	log.Warn("verify: all strategies failed, keeping initial answer", zap.Int("attempts", len(attempts)))
	return attempts
}
