package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/knowledge"
	"github.com/sells-group/medcode-cli/internal/model"
)

// DefaultBatchSize is the number of questions processed per batch.
const DefaultBatchSize = 10

// History receives one performance log per scoring pass.
type History interface {
	AppendPerformanceLog(ctx context.Context, log model.PerformanceLog) error
}

// Pipeline runs questions through classify, resolve, answer, verify, and
// score. Questions are processed one at a time in submission order; the
// knowledge cache is the only shared state.
type Pipeline struct {
	cache     *knowledge.Cache
	answerer  *Answerer
	verifier  *Verifier
	enricher  *Enricher
	history   History
	batchSize int
	newRunID  func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets the batch size. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithEnricher stores explanations for missed questions after scoring.
func WithEnricher(e *Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

// WithHistory appends every performance log to h.
func WithHistory(h History) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(fn func() string) Option {
	return func(p *Pipeline) { p.newRunID = fn }
}

// New creates a Pipeline. verifier may be nil to skip escalation.
func New(cache *knowledge.Cache, answerer *Answerer, verifier *Verifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:     cache,
		answerer:  answerer,
		verifier:  verifier,
		batchSize: DefaultBatchSize,
		newRunID:  uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Result is the outcome of Run.
type Result struct {
	RunID     string
	Questions []model.Question
	// Report is nil when no answer key was given.
	Report   *model.ScoreReport
	Enriched int
	Duration time.Duration
}

// Run processes questions and, when key is non-nil, scores them, enriches
// the cache for missed questions, and appends the performance log. Only
// context cancellation and cache load failures are returned as errors.
func (p *Pipeline) Run(ctx context.Context, questions []model.Question, key model.AnswerKey) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: p.newRunID(), Questions: questions}
	log := zap.L().With(zap.String("run_id", res.RunID))
	log.Info("pipeline: starting run", zap.Int("questions", len(questions)), zap.Int("batch_size", p.batchSize))

	if err := p.cache.Load(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: load cache")
	}
	if err := p.Process(ctx, questions); err != nil {
		return nil, err
	}

	if key != nil {
		report := Score(questions, key)
		report.Log.RunID = res.RunID
		res.Report = &report
		log.Info("pipeline: scored",
			zap.Int("correct", report.Log.Overall.Correct),
			zap.Int("total", report.Log.Overall.Total),
			zap.Int("accuracy", report.Log.Overall.Accuracy),
		)

		if p.enricher != nil {
			res.Enriched = p.enricher.EnrichFailures(ctx, questions, report.Results)
		}
		if p.history != nil {
			if err := p.history.AppendPerformanceLog(ctx, report.Log); err != nil {
				log.Warn("pipeline: append performance log failed", zap.Error(err))
			}
		}
	}

	res.Duration = time.Since(start)
	log.Info("pipeline: run complete", zap.Duration("duration", res.Duration), zap.Int("cache_fetches", p.cache.Fetches()))
	return res, nil
}

// Process answers every question in place, batch by batch. A failure inside
// one question never stops the others; only context cancellation does.
func (p *Pipeline) Process(ctx context.Context, questions []model.Question) error {
	for start := 0; start < len(questions); start += p.batchSize {
		end := min(start+p.batchSize, len(questions))
		batchStart := time.Now()

		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return eris.Wrapf(err, "pipeline: stopped before question %d", questions[i].Number)
			}
			p.processQuestion(ctx, &questions[i])
		}

		zap.L().Info("pipeline: batch complete",
			zap.Int("batch", start/p.batchSize+1),
			zap.Int("questions", end-start),
			zap.Duration("duration", time.Since(batchStart)),
		)
	}
	return nil
}

func (p *Pipeline) processQuestion(ctx context.Context, q *model.Question) {
	log := zap.L().With(zap.Int("question", q.Number))
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: question panicked, using fallback", zap.Any("panic", r))
			if q.Answer == nil {
				fb := FallbackAnswer(p.answerer.Model(), fmt.Sprintf("panic: %v", r))
				q.Answer = &fb
			}
		}
	}()

	family := Classify(q)
	q.Codes = ExtractCodes(q.OptionTexts(), family)
	refs := p.references(ctx, family, Dedupe(q.Codes))

	rec := p.answerer.Answer(ctx, q, refs)
	q.Answer = &rec
	log.Debug("pipeline: answered",
		zap.String("family", string(family)),
		zap.String("choice", rec.Choice),
		zap.Int("confidence", rec.Confidence),
	)

	if p.verifier != nil && p.verifier.NeedsVerification(q) {
		p.verifier.Verify(ctx, q, refs)
	}
}

// references resolves codes through the cache. Flush failures are logged;
// the description is still used.
func (p *Pipeline) references(ctx context.Context, family model.Family, codes []string) []CodeReference {
	refs := make([]CodeReference, 0, len(codes))
	for _, code := range codes {
		desc, err := p.cache.Resolve(ctx, family, code)
		if err != nil {
			zap.L().Warn("pipeline: cache resolve reported an error", zap.String("code", code), zap.Error(err))
		}
		refs = append(refs, CodeReference{Family: family, Code: code, Description: desc})
	}
	return refs
}
