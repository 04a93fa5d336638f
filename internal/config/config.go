package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Anthropic      AnthropicConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI         OpenAIConfig         `yaml:"openai" mapstructure:"openai"`
	Perplexity     PerplexityConfig     `yaml:"perplexity" mapstructure:"perplexity"`
	Jina           JinaConfig           `yaml:"jina" mapstructure:"jina"`
	ClinicalTables ClinicalTablesConfig `yaml:"clinicaltables" mapstructure:"clinicaltables"`
	Knowledge      KnowledgeConfig      `yaml:"knowledge" mapstructure:"knowledge"`
	Pipeline       PipelineConfig       `yaml:"pipeline" mapstructure:"pipeline"`
	Retry          RetryConfig          `yaml:"retry" mapstructure:"retry"`
	Circuit        CircuitConfig        `yaml:"circuit" mapstructure:"circuit"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures where the code cache and performance history live.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	HistoryPath string `yaml:"history_path" mapstructure:"history_path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the reasoning strategy.
type AnthropicConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	ReasoningModel string `yaml:"reasoning_model" mapstructure:"reasoning_model"`
	AnswerModel    string `yaml:"answer_model" mapstructure:"answer_model"`
	ThinkingBudget int64  `yaml:"thinking_budget" mapstructure:"thinking_budget"`
	MaxTokens      int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings for answering and the fallback check.
type OpenAIConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	AnswerModel   string `yaml:"answer_model" mapstructure:"answer_model"`
	FallbackModel string `yaml:"fallback_model" mapstructure:"fallback_model"`
	MaxTokens     int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// ClinicalTablesConfig holds the NLM Clinical Tables API endpoint.
type ClinicalTablesConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// KnowledgeConfig configures the code cache and its resolvers.
type KnowledgeConfig struct {
	CrawlDelayMs int    `yaml:"crawl_delay_ms" mapstructure:"crawl_delay_ms"`
	CPTLookupURL string `yaml:"cpt_lookup_url" mapstructure:"cpt_lookup_url"`
	Explanations bool   `yaml:"explanations" mapstructure:"explanations"`
}

// PipelineConfig configures answering and verification.
type PipelineConfig struct {
	BatchSize       int      `yaml:"batch_size" mapstructure:"batch_size"`
	VerifyThreshold int      `yaml:"verify_threshold" mapstructure:"verify_threshold"`
	AnswerProvider  string   `yaml:"answer_provider" mapstructure:"answer_provider"`
	Strategies      []string `yaml:"strategies" mapstructure:"strategies"`
	EnrichFailures  bool     `yaml:"enrich_failures" mapstructure:"enrich_failures"`
}

// RetryConfig configures retries for transient provider failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MEDCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials default to empty so AutomaticEnv binds them on Unmarshal.
	for _, key := range []string{"anthropic.key", "openai.key", "perplexity.key", "jina.key", "store.database_url"} {
		v.SetDefault(key, "")
	}

	// Defaults
	v.SetDefault("store.driver", "json")
	v.SetDefault("store.path", "code_cache.json")
	v.SetDefault("store.history_path", "performance_log.json")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.reasoning_model", "claude-opus-4-6")
	v.SetDefault("anthropic.answer_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.thinking_budget", 4096)
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.answer_model", "gpt-4o")
	v.SetDefault("openai.fallback_model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("clinicaltables.base_url", "https://clinicaltables.nlm.nih.gov/api")
	v.SetDefault("knowledge.crawl_delay_ms", 1500)
	v.SetDefault("knowledge.cpt_lookup_url", "https://www.aapc.com/codes/cpt-codes/%s")
	v.SetDefault("knowledge.explanations", false)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.verify_threshold", 6)
	v.SetDefault("pipeline.answer_provider", "openai")
	v.SetDefault("pipeline.strategies", []string{"reasoning", "search", "fallback"})
	v.SetDefault("pipeline.enrich_failures", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on and reports every
// problem at once. Modes: "run", "score", "cache", "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "json":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for the json driver")
		}
	case "sqlite", "postgres":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of json, sqlite, postgres", c.Store.Driver))
	}

	switch mode {
	case "run":
		switch c.Pipeline.AnswerProvider {
		case "openai":
			if c.OpenAI.Key == "" {
				errs = append(errs, "openai.key is required when pipeline.answer_provider is openai")
			}
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required when pipeline.answer_provider is anthropic")
			}
		default:
			errs = append(errs, fmt.Sprintf("pipeline.answer_provider %q is not one of openai, anthropic", c.Pipeline.AnswerProvider))
		}
		if c.Pipeline.BatchSize < 1 {
			errs = append(errs, "pipeline.batch_size must be >= 1")
		}
		if c.Pipeline.VerifyThreshold < 1 || c.Pipeline.VerifyThreshold > 10 {
			errs = append(errs, "pipeline.verify_threshold must be between 1 and 10")
		}
		if c.Knowledge.CrawlDelayMs < 0 {
			errs = append(errs, "knowledge.crawl_delay_ms must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "score", "cache":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
