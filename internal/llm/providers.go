package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medcode-cli/pkg/anthropic"
	"github.com/sells-group/medcode-cli/pkg/openai"
	"github.com/sells-group/medcode-cli/pkg/perplexity"
)

// Anthropic is a Model backed by the Messages API. A positive ThinkingBudget
// turns on extended thinking.
type Anthropic struct {
	Client         anthropic.Client
	Model          string
	MaxTokens      int64
	ThinkingBudget int64
}

// Name implements Model.
func (a *Anthropic) Name() string { return a.Model }

// Complete implements Model.
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Completion, error) {
	maxTokens := a.MaxTokens
	if a.ThinkingBudget > 0 && maxTokens <= a.ThinkingBudget {
		maxTokens = a.ThinkingBudget + 1024
	}
	resp, err := a.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:          a.Model,
		MaxTokens:      maxTokens,
		System:         anthropic.CachedSystem(req.System, "5m"),
		Messages:       []anthropic.Message{{Role: "user", Content: req.Prompt}},
		ThinkingBudget: a.ThinkingBudget,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(a.Model, req.Phase)
	return &Completion{
		Text:     resp.Text(),
		Thinking: resp.Thinking(),
		Model:    a.Model,
	}, nil
}

// OpenAI is a Model backed by chat completions.
type OpenAI struct {
	Client    openai.Client
	Model     string
	MaxTokens int
}

// Name implements Model.
func (o *OpenAI) Name() string { return o.Model }

// Complete implements Model.
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := o.Client.Chat(ctx, openai.ChatRequest{
		Model:     o.Model,
		System:    req.System,
		User:      req.Prompt,
		MaxTokens: o.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(o.Model, req.Phase)
	return &Completion{Text: resp.Content, Model: o.Model}, nil
}

// Perplexity is a search-grounded Model. Domains restricts the web search.
type Perplexity struct {
	Client  perplexity.Client
	Model   string
	Domains []string
}

// Name implements Model.
func (p *Perplexity) Name() string { return p.Model }

// Complete implements Model.
func (p *Perplexity) Complete(ctx context.Context, req Request) (*Completion, error) {
	msgs := make([]perplexity.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	resp, err := p.Client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:              p.Model,
		Messages:           msgs,
		SearchDomainFilter: p.Domains,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("perplexity: completion returned no choices")
	}
	return &Completion{Text: resp.Text(), Citations: resp.Citations, Model: p.Model}, nil
}
