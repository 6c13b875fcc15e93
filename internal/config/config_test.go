package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("INDEX_BACKEND", "")
	t.Setenv("API_RATE_LIMIT_RPS", "")
	t.Setenv("PURGE_SCHEDULE", "")

	cfg := Load()
	require.Equal(t, "ollama", cfg.LLMProvider)
	require.Equal(t, "qdrant", cfg.IndexBackend)
	require.Equal(t, 20.0, cfg.APIRateLimitRPS)
	require.Equal(t, "*/15 * * * *", cfg.PurgeSchedule)
	require.Equal(t, 5*time.Minute, cfg.ProcessTimeout())
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("INDEX_BACKEND", "pgvector")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("RESILIENCE_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("RESILIENCE_BREAKER_ENABLED", "false")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	require.Equal(t, "openai", cfg.LLMProvider)
	require.Equal(t, "pgvector", cfg.IndexBackend)
	require.Equal(t, 2.5, cfg.APIRateLimitRPS)
	require.Equal(t, int64(50<<20), cfg.MaxUploadBytes)

	res := cfg.ResilienceConfig()
	require.Equal(t, 5, res.RetryMaxAttempts)
	require.False(t, res.BreakerEnabled)
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("QDRANT_COLLECTION=from_file\nAPI_PORT=9999\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("API_PORT", "7000")
	t.Setenv("QDRANT_COLLECTION", "")
	require.NoError(t, os.Unsetenv("QDRANT_COLLECTION"))

	cfg := Load()
	require.Equal(t, "from_file", cfg.QdrantCollection)
	require.Equal(t, "7000", cfg.APIPort)
}

func TestFileSettingsProviderOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retrieval:
  alpha: 0.5
  top_k: 4
  rerank_top_n: 9
cache:
  ttl_days: 3
`), 0o600))

	p := NewFileSettingsProvider(path, nil)
	s := p.Current()
	require.Equal(t, 0.5, s.Retrieval.Alpha)
	require.Equal(t, 4, s.Retrieval.TopK)
	require.Equal(t, 4, s.Retrieval.RerankTopN)
	require.Equal(t, 3, s.Cache.TTLDays)
	require.Equal(t, domain.DefaultSettings().Chunking, s.Chunking)
	require.Equal(t, 655.957, s.Pricing.USDToXAF)
}

func TestFileSettingsProviderKeepsLastGoodSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 6\n"), 0o600))
	p := NewFileSettingsProvider(path, nil)
	require.Equal(t, 6, p.Current().Retrieval.TopK)

	require.NoError(t, os.WriteFile(path, []byte("retrieval: [not, a, map"), 0o600))
	err := p.Reload(context.Background())
	require.True(t, domain.IsKind(err, domain.ErrInvalidInput), "got %v", err)
	require.Equal(t, 6, p.Current().Retrieval.TopK)

	require.NoError(t, os.Remove(path))
	require.NoError(t, p.Reload(context.Background()))
	require.Equal(t, 6, p.Current().Retrieval.TopK)
}

func TestMissingSettingsFileServesDefaults(t *testing.T) {
	p := NewFileSettingsProvider(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Equal(t, domain.DefaultSettings(), p.Current())
}
