// Package llm adapts the provider clients to a single completion interface
// used by answering and verification.
package llm

import (
	"context"
)

// Request is a single-turn prompt.
type Request struct {
	System string
	Prompt string
	// Phase labels the call in cost logs ("answer", "verify:reasoning", ...).
	Phase string
}

// Completion is a model's reply. Thinking and Citations are set only by
// providers that produce them.
type Completion struct {
	Text      string
	Thinking  string
	Citations []string
	Model     string
}

// Model is a language model bound to a provider and model ID.
type Model interface {
	// Name returns the model ID recorded on answers.
	Name() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Func adapts a function to Model.
type Func struct {
	ID string
	Fn func(ctx context.Context, req Request) (*Completion, error)
}

// Name implements Model.
func (f Func) Name() string { return f.ID }

// Complete implements Model.
func (f Func) Complete(ctx context.Context, req Request) (*Completion, error) {
	return f.Fn(ctx, req)
}
