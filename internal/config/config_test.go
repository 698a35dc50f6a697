package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kereru.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  api_key: test-key
search:
  api_key: tvly-test
`)
	cfg, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.ListenAddr)
	require.Equal(t, 20000, cfg.Guardrails.MaxPromptChars)
	require.Equal(t, 50000, cfg.Guardrails.MaxOutputChars)
	require.InDelta(t, 0.7, cfg.Guardrails.ToxicityThreshold, 1e-9)
	require.Equal(t, 200, cfg.Guardrails.LogContentChars)
	require.True(t, cfg.Guardrails.RegionalPatterns)
	require.Equal(t, 30, cfg.RateLimits.MaxRequests)
	require.Equal(t, time.Minute, cfg.RateLimits.Window)
	require.Equal(t, RateLimitBackendMemory, cfg.RateLimits.Backend)
	require.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	require.Equal(t, "ashela_ec3d/kereru-ai-demo-fixed", cfg.Model.ModelID)
	require.Equal(t, []string{"govt.nz", "co.nz", "org.nz", "ac.nz"}, cfg.Search.IncludeDomains)
	require.Equal(t, 5, cfg.Search.MaxResults)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "search:\n  enabled: false\n")
	t.Setenv("KERERU_MODEL_API_KEY", "env-key")
	t.Setenv("KERERU_RATE_LIMITS_MAX_REQUESTS", "5")
	t.Setenv("KERERU_RATE_LIMITS_WINDOW", "10s")
	t.Setenv("KERERU_GUARDRAILS_REGIONAL_PATTERNS", "false")

	cfg, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Model.APIKey)
	require.Equal(t, 5, cfg.RateLimits.MaxRequests)
	require.Equal(t, 10*time.Second, cfg.RateLimits.Window)
	require.False(t, cfg.Guardrails.RegionalPatterns)
}

func TestValidateReportsMissingKeys(t *testing.T) {
	path := writeConfig(t, `
rate_limits:
  backend: redis
`)
	_, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "KERERU_MODEL_API_KEY")
	require.Contains(t, err.Error(), "KERERU_REDIS_URL")
	require.Contains(t, err.Error(), "KERERU_SEARCH_API_KEY")
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	path := writeConfig(t, `
model:
  api_key: k
search:
  enabled: false
guardrails:
  toxicity_threshold: 1.5
`)
	_, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
}

func TestValidateBedrockRequiresRegion(t *testing.T) {
	path := writeConfig(t, `
model:
  provider: bedrock
  model_id: anthropic.claude-3-haiku-20240307-v1:0
search:
  enabled: false
`)
	_, err := Load(Options{ConfigFile: path, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "KERERU_MODEL_BEDROCK_REGION")
}
