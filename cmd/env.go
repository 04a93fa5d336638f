package main

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/config"
	"github.com/sells-group/medcode-cli/internal/knowledge"
	"github.com/sells-group/medcode-cli/internal/llm"
	"github.com/sells-group/medcode-cli/internal/model"
	"github.com/sells-group/medcode-cli/internal/pipeline"
	"github.com/sells-group/medcode-cli/internal/resilience"
	"github.com/sells-group/medcode-cli/internal/resolver"
	"github.com/sells-group/medcode-cli/internal/store"
	anthropicpkg "github.com/sells-group/medcode-cli/pkg/anthropic"
	"github.com/sells-group/medcode-cli/pkg/clinicaltables"
	"github.com/sells-group/medcode-cli/pkg/jina"
	openaipkg "github.com/sells-group/medcode-cli/pkg/openai"
	"github.com/sells-group/medcode-cli/pkg/perplexity"
)

// searchDomains limits the search strategy to official and reference coding
// sources.
var searchDomains = []string{"cms.gov", "cdc.gov", "ama-assn.org", "aapc.com"}

// initStore opens the configured store and migrates it.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "json":
		st = store.NewJSON(c.Store.Path, c.Store.HistoryPath)
	case "sqlite":
		dsn := c.Store.Path
		if dsn == "" || strings.HasSuffix(dsn, ".json") {
			dsn = "medcode.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// buildCache creates the code cache with a resolver per code family:
// Clinical Tables for ICD-10 and HCPCS, a paced page crawl for CPT.
func buildCache(c *config.Config, st store.Store, guard *resilience.Guard) *knowledge.Cache {
	ct := clinicaltables.NewClient(clinicaltables.WithBaseURL(c.ClinicalTables.BaseURL))

	jinaOpts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	crawl := resolver.NewCrawl(jina.NewClient(c.Jina.Key, jinaOpts...), c.Knowledge.CPTLookupURL, lookupSite(c.Knowledge.CPTLookupURL), guard)

	return knowledge.New(st,
		knowledge.WithSource(model.FamilyICD10, knowledge.Source{Resolver: resolver.NewClinicalTables(ct, clinicaltables.ICD10CM, guard)}),
		knowledge.WithSource(model.FamilyHCPCS, knowledge.Source{Resolver: resolver.NewClinicalTables(ct, clinicaltables.HCPCS, guard)}),
		knowledge.WithSource(model.FamilyCPT, knowledge.Source{
			Resolver:   crawl,
			CrawlDelay: time.Duration(c.Knowledge.CrawlDelayMs) * time.Millisecond,
		}),
		knowledge.WithExplanations(c.Knowledge.Explanations),
	)
}

// lookupSite returns the host of the CPT lookup URL template, used to keep
// the crawl's search fallback on the same site.
func lookupSite(template string) string {
	u, err := url.Parse(strings.ReplaceAll(template, "%s", "x"))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// buildAnswerModel returns the guarded model for pipeline.answer_provider.
func buildAnswerModel(c *config.Config, guard *resilience.Guard) (llm.Model, error) {
	switch c.Pipeline.AnswerProvider {
	case "openai":
		if c.OpenAI.Key == "" {
			return nil, eris.New("openai.key is required to answer questions (MEDCODE_OPENAI_KEY)")
		}
		client := openaipkg.NewClient(c.OpenAI.Key, openaipkg.WithBaseURL(c.OpenAI.BaseURL))
		return llm.Guard(&llm.OpenAI{Client: client, Model: c.OpenAI.AnswerModel, MaxTokens: c.OpenAI.MaxTokens}, guard, "openai"), nil
	case "anthropic":
		if c.Anthropic.Key == "" {
			return nil, eris.New("anthropic.key is required to answer questions (MEDCODE_ANTHROPIC_KEY)")
		}
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		return llm.Guard(&llm.Anthropic{Client: client, Model: c.Anthropic.AnswerModel, MaxTokens: c.Anthropic.MaxTokens}, guard, "anthropic"), nil
	default:
		return nil, eris.Errorf("unsupported answer provider: %s", c.Pipeline.AnswerProvider)
	}
}

// buildStrategies binds each configured strategy to its provider. Strategies
// whose provider has no key are left out of the chain.
func buildStrategies(c *config.Config, guard *resilience.Guard) ([]pipeline.Strategy, error) {
	out := make([]pipeline.Strategy, 0, len(c.Pipeline.Strategies))
	for _, name := range c.Pipeline.Strategies {
		var (
			m   llm.Model
			key string
		)
		switch name {
		case pipeline.StrategyReasoning:
			key = c.Anthropic.Key
			m = llm.Guard(&llm.Anthropic{
				Client:         anthropicpkg.NewClient(c.Anthropic.Key),
				Model:          c.Anthropic.ReasoningModel,
				MaxTokens:      c.Anthropic.MaxTokens,
				ThinkingBudget: c.Anthropic.ThinkingBudget,
			}, guard, "anthropic")
		case pipeline.StrategySearch:
			key = c.Perplexity.Key
			m = llm.Guard(&llm.Perplexity{
				Client:  perplexity.NewClient(c.Perplexity.Key, perplexity.WithBaseURL(c.Perplexity.BaseURL), perplexity.WithModel(c.Perplexity.Model)),
				Model:   c.Perplexity.Model,
				Domains: searchDomains,
			}, guard, "perplexity")
		case pipeline.StrategyFallback:
			key = c.OpenAI.Key
			m = llm.Guard(&llm.OpenAI{
				Client:    openaipkg.NewClient(c.OpenAI.Key, openaipkg.WithBaseURL(c.OpenAI.BaseURL)),
				Model:     c.OpenAI.FallbackModel,
				MaxTokens: c.OpenAI.MaxTokens,
			}, guard, "openai")
		default:
			return nil, eris.Errorf("unknown verification strategy %q", name)
		}

		if key == "" {
			zap.L().Warn("verification strategy disabled: provider key missing", zap.String("strategy", name))
			continue
		}
		s, err := pipeline.NewStrategy(name, m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// parseFamilyArg parses a family argument, rejecting GENERAL which has no
// cache partition.
func parseFamilyArg(s string) (model.Family, error) {
	f, ok := model.ParseFamily(s)
	if !ok || !f.HasCodes() {
		return "", eris.Errorf("unknown code family %q (want CPT, ICD-10, or HCPCS)", s)
	}
	return f, nil
}

// breakerStates renders the guard's breaker states for logging.
func breakerStates(g *resilience.Guard) map[string]string {
	states := g.States()
	out := make(map[string]string, len(states))
	for name, st := range states {
		out[name] = st.String()
	}
	return out
}
