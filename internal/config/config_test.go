package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")
	t.Setenv(llmModelEnv, "")
	t.Setenv(databaseDriverEnv, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Enrichment.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Enrichment.InterBatchDelay)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
	require.NotEmpty(t, cfg.Regulations)
	assert.Equal(t, "gdpr", cfg.Regulations[0].Key)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regingest.yaml")
	raw := `
logging:
  level: debug
database:
  driver: sqlite
  dsn: /tmp/regingest.db
enrichment:
  provider: anthropic
  model: claude-haiku
  concurrency: 5
  interBatchDelay: 300ms
scheduler:
  interval: 6h
  timezone: Europe/Berlin
regulations:
  - key: cra
    name: CRA
    url: https://example.org/cra
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	t.Setenv(databaseDSNEnv, "file:override.db")
	t.Setenv(llmAPIKeyEnv, "secret")
	t.Setenv(llmModelEnv, "")
	t.Setenv(logLevelEnv, "")
	t.Setenv(databaseDriverEnv, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:override.db", cfg.Database.DSN)
	assert.Equal(t, "anthropic", cfg.Enrichment.Provider)
	assert.Equal(t, "claude-haiku", cfg.Enrichment.Model)
	assert.Equal(t, "secret", cfg.Enrichment.APIKey)
	assert.Equal(t, 5, cfg.Enrichment.Concurrency)
	assert.Equal(t, 300*time.Millisecond, cfg.Enrichment.InterBatchDelay)
	assert.Equal(t, 2, cfg.Enrichment.MaxRetries, "unset values keep defaults")
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Location().String())
	require.Len(t, cfg.Regulations, 1)
	assert.Equal(t, "cra", cfg.Regulations[0].Key)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
