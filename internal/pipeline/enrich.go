package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/knowledge"
	"github.com/sells-group/medcode-cli/internal/llm"
	"github.com/sells-group/medcode-cli/internal/model"
)

// Enricher writes explanations for the codes behind missed questions into the
// cache, so later runs in explanation mode see them.
type Enricher struct {
	model llm.Model
	cache *knowledge.Cache
}

// NewEnricher creates an Enricher.
func NewEnricher(m llm.Model, cache *knowledge.Cache) *Enricher {
	return &Enricher{model: m, cache: cache}
}

// EnrichFailures explains the correct option's codes for every incorrect
// result and returns how many explanations were stored. Failures are logged
// and skipped.
func (e *Enricher) EnrichFailures(ctx context.Context, questions []model.Question, results []model.TestResult) int {
	byNumber := make(map[int]*model.Question, len(questions))
	for i := range questions {
		byNumber[questions[i].Number] = &questions[i]
	}

	stored := 0
	for _, r := range results {
		if r.IsCorrect {
			continue
		}
		q, ok := byNumber[r.Number]
		if !ok || !q.Family.HasCodes() {
			continue
		}
		opt, ok := q.Option(r.Correct)
		if !ok {
			continue
		}
		for _, code := range Dedupe(ExtractCodes([]string{opt.Text}, q.Family)) {
			if ctx.Err() != nil {
				return stored
			}
			if e.explain(ctx, q, code, r.Submitted) {
				stored++
			}
		}
	}
	return stored
}

func (e *Enricher) explain(ctx context.Context, q *model.Question, code, submitted string) bool {
	log := zap.L().With(zap.Int("question", q.Number), zap.String("family", string(q.Family)), zap.String("code", code))

	desc, err := e.cache.Resolve(ctx, q.Family, code)
	if err != nil {
		log.Warn("enrich: cache flush failed", zap.Error(err))
	}
	ref := CodeReference{Family: q.Family, Code: code, Description: firstLine(desc)}

	resp, err := e.model.Complete(ctx, llm.Request{
		System: explainSystemPrompt,
		Prompt: explainPrompt(q, ref, submitted),
		Phase:  "enrich",
	})
	if err != nil {
		log.Warn("enrich: model call failed", zap.Error(err))
		return false
	}
	explanation := strings.TrimSpace(resp.Text)
	if explanation == "" {
		log.Warn("enrich: empty explanation")
		return false
	}
	if err := e.cache.Enrich(ctx, q.Family, code, explanation); err != nil {
		log.Warn("enrich: store explanation failed", zap.Error(err))
		return false
	}
	log.Info("enrich: explanation stored")
	return true
}

// firstLine drops an appended explanation from a rendered description.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
