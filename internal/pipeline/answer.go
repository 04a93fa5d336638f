package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/llm"
	"github.com/sells-group/medcode-cli/internal/model"
)

// Fallback answer used when a response cannot be used.
const (
	DefaultChoice     = "A"
	DefaultConfidence = 5
)

// Answerer asks a model for an initial answer.
type Answerer struct {
	model llm.Model
}

// NewAnswerer creates an Answerer backed by m.
func NewAnswerer(m llm.Model) *Answerer {
	return &Answerer{model: m}
}

// Model returns the ID of the answering model.
func (a *Answerer) Model() string { return a.model.Name() }

// Answer returns the model's answer to q grounded on refs. It never fails:
// provider errors and unparseable responses produce the fallback record.
func (a *Answerer) Answer(ctx context.Context, q *model.Question, refs []CodeReference) model.AnswerRecord {
	log := zap.L().With(zap.Int("question", q.Number), zap.String("model", a.model.Name()))

	prompt := answerPrompt(q, refs)
	log.Debug("answer: prompt built", zap.Int("prompt_len", len(prompt)), zap.Int("refs", len(refs)))

	resp, err := a.model.Complete(ctx, llm.Request{System: answerSystemPrompt, Prompt: prompt, Phase: "answer"})
	if err != nil {
		log.Warn("answer: model call failed, using fallback", zap.Error(err))
		return FallbackAnswer(a.model.Name(), fmt.Sprintf("processing error: %v", err))
	}

	rec, err := ParseAnswer(resp.Text)
	if err != nil {
		log.Warn("answer: unparseable response, using fallback", zap.Error(err), zap.Int("response_len", len(resp.Text)))
		return FallbackAnswer(a.model.Name(), fmt.Sprintf("parse failure: %v", err))
	}
	rec.Model = a.model.Name()
	return rec
}

// FallbackAnswer is the default record substituted for a failed answer.
func FallbackAnswer(modelID, reason string) model.AnswerRecord {
	return model.AnswerRecord{
		Choice:     DefaultChoice,
		Confidence: DefaultConfidence,
		Reasoning:  "default answer after " + reason,
		Model:      modelID,
		Fallback:   true,
	}
}
