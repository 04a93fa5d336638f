package llm

import (
	"context"
	"errors"

	"github.com/sells-group/medcode-cli/internal/resilience"
	"github.com/sells-group/medcode-cli/pkg/anthropic"
	"github.com/sells-group/medcode-cli/pkg/openai"
	"github.com/sells-group/medcode-cli/pkg/perplexity"
)

type guarded struct {
	Model
	guard    *resilience.Guard
	provider string
}

// Guard wraps m so each call is retried on transient failures and passes
// through the provider's circuit breaker.
func Guard(m Model, g *resilience.Guard, provider string) Model {
	return &guarded{Model: m, guard: g, provider: provider}
}

func (g *guarded) Complete(ctx context.Context, req Request) (*Completion, error) {
	return resilience.Call(ctx, g.guard, g.provider, req.Phase, func(ctx context.Context) (*Completion, error) {
		c, err := g.Model.Complete(ctx, req)
		if err != nil {
			return nil, MarkTransient(err)
		}
		return c, nil
	})
}

// MarkTransient wraps provider errors with a retryable HTTP status as
// resilience.TransientError. Other errors are returned unchanged.
func MarkTransient(err error) error {
	status := 0
	var (
		aErr *anthropic.APIError
		oErr *openai.APIError
		pErr *perplexity.APIError
	)
	switch {
	case errors.As(err, &aErr):
		status = aErr.StatusCode
	case errors.As(err, &oErr):
		status = oErr.StatusCode
	case errors.As(err, &pErr):
		status = pErr.StatusCode
	}
	if status != 0 && resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
