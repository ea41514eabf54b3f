package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
extraction:
  chain: [heuristic, gpt]
  cost_cap_usd: 0.5
  confidence_threshold: 0.85
  timeout: 30s
providers:
  gpt:
    type: GPT
    model: gpt-4o-mini
    api_key_env: TEST_GPT_KEY
    input_per_mtok: 0.15
    output_per_mtok: 0.6
matching:
  amount_tolerance: 0.2
patterns:
  driver: sqlite
  dsn: /tmp/patterns.db
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadConfig_YAMLAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"heuristic", "gpt"}, cfg.Extraction.Chain)
	assert.InDelta(t, 0.5, cfg.Extraction.CostCapUSD, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, 4, cfg.Extraction.Workers)

	gpt := cfg.Providers["gpt"]
	assert.Equal(t, "openai", gpt.Type)
	assert.Equal(t, 50, gpt.RequestsPerMinute)
	assert.EqualValues(t, 2048, gpt.MaxOutputTokens)
	assert.Equal(t, "heuristic", cfg.Providers["heuristic"].Type)

	assert.InDelta(t, 0.2, cfg.Matching.AmountTolerance, 1e-9)
	assert.InDelta(t, 0.30, cfg.Matching.RelevanceFloor, 1e-9)
	assert.InDelta(t, 0.6, cfg.Matching.TextWeight, 1e-9)
	assert.Equal(t, "sqlite", cfg.Patterns.Driver)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("INVOICEMATCH_EXTRACTION__COST_CAP_USD", "0.25")
	t.Setenv("INVOICEMATCH_EXTRACTION__CHAIN", "gpt, heuristic")
	t.Setenv("INVOICEMATCH_MATCHING__RELEVANCE_FLOOR", "0.4")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, cfg.Extraction.CostCapUSD, 1e-9)
	assert.Equal(t, []string{"gpt", "heuristic"}, cfg.Extraction.Chain)
	assert.InDelta(t, 0.4, cfg.Matching.RelevanceFloor, 1e-9)
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"heuristic"}, cfg.Extraction.Chain)
	assert.InDelta(t, 0.80, cfg.Extraction.ConfidenceThreshold, 1e-9)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		is     error
	}{
		{"chain method without provider", func(c *Config) { c.Extraction.Chain = []string{"heuristic", "claude"} }, ErrNoMethods},
		{"threshold out of range", func(c *Config) { c.Extraction.ConfidenceThreshold = 1.5 }, ErrValidation},
		{"negative cost cap", func(c *Config) { c.Extraction.CostCapUSD = -1 }, ErrValidation},
		{"llm provider without model", func(c *Config) {
			c.Providers["claude"] = ProviderConfig{Type: "anthropic", RequestsPerMinute: 10}
		}, ErrValidation},
		{"unknown pattern driver", func(c *Config) { c.Patterns.Driver = "mongo" }, ErrValidation},
		{"sqlite without dsn", func(c *Config) { c.Patterns.Driver = "sqlite" }, ErrValidation},
		{"redis without address", func(c *Config) { c.RateLimit.Backend = "redis" }, ErrValidation},
		{"zero weights", func(c *Config) { c.Matching.TextWeight, c.Matching.AmountWeight = 0, 0 }, ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.is)
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "CONFIG_ERROR", appErr.Code)
		})
	}
}

func TestProviderConfig_APIKey(t *testing.T) {
	t.Setenv("TEST_GPT_KEY", "sk-from-named-env")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-default")

	assert.Equal(t, "sk-from-named-env", ProviderConfig{Type: "openai", APIKeyEnv: "TEST_GPT_KEY"}.APIKey())
	assert.Equal(t, "sk-ant-default", ProviderConfig{Type: "anthropic"}.APIKey())
	assert.Empty(t, ProviderConfig{Type: "heuristic"}.APIKey())
}
