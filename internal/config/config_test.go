package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, "code_cache.json", cfg.Store.Path)
	assert.Equal(t, "performance_log.json", cfg.Store.HistoryPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Pipeline.BatchSize)
	assert.Equal(t, 6, cfg.Pipeline.VerifyThreshold)
	assert.Equal(t, "openai", cfg.Pipeline.AnswerProvider)
	assert.Equal(t, []string{"reasoning", "search", "fallback"}, cfg.Pipeline.Strategies)
	assert.False(t, cfg.Pipeline.EnrichFailures)
	assert.Equal(t, 1500, cfg.Knowledge.CrawlDelayMs)
	assert.Equal(t, "https://clinicaltables.nlm.nih.gov/api", cfg.ClinicalTables.BaseURL)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "claude-opus-4-6", cfg.Anthropic.ReasoningModel)
	assert.Equal(t, int64(4096), cfg.Anthropic.ThinkingBudget)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.AnswerModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.FallbackModel)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.InDelta(t, 0.25, cfg.Retry.JitterFraction, 0.001)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  path: cache.db
log:
  level: debug
  format: console
pipeline:
  batch_size: 5
  strategies: [search, fallback]
knowledge:
  explanations: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "cache.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Pipeline.BatchSize)
	assert.Equal(t, []string{"search", "fallback"}, cfg.Pipeline.Strategies)
	assert.True(t, cfg.Knowledge.Explanations)
	// Defaults still apply for unset values
	assert.Equal(t, 6, cfg.Pipeline.VerifyThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("MEDCODE_STORE_DRIVER", "json")
	t.Setenv("MEDCODE_LOG_LEVEL", "warn")
	t.Setenv("MEDCODE_OPENAI_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "sk-test", cfg.OpenAI.Key)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the defaults a run needs.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "json"
	cfg.Store.Path = "code_cache.json"
	cfg.Pipeline.AnswerProvider = "openai"
	cfg.Pipeline.BatchSize = 10
	cfg.Pipeline.VerifyThreshold = 6
	cfg.OpenAI.Key = "sk-test"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("run"))
}

func TestValidateRun_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.OpenAI.Key = ""
	cfg.Pipeline.BatchSize = 0
	cfg.Pipeline.VerifyThreshold = 11

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.key is required")
	assert.Contains(t, err.Error(), "batch_size must be >= 1")
	assert.Contains(t, err.Error(), "verify_threshold must be between 1 and 10")
}

func TestValidateRun_AnthropicProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Pipeline.AnswerProvider = "anthropic"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mongo"
	err := cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	cfg.Store.Driver = "postgres"
	err = cfg.Validate("cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
