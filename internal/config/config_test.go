package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 50, cfg.Model.MinTrainingSamples)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server:\n  addr: \":9090\"\nmodel:\n  min_training_samples: 80\n"), 0o644))

	t.Setenv("TL_SERVER_ADDR", ":7070")
	t.Setenv("TL_RATE_LIMIT_RPM", "120")
	t.Setenv("TL_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	// Environment beats file, file beats defaults.
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 80, cfg.Model.MinTrainingSamples)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestInvalidEnvValueKeepsDefault(t *testing.T) {
	t.Setenv("TL_DATABASE_QUERY_TIMEOUT", "soon")
	t.Setenv("TL_MIN_TRAINING_SAMPLES", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 50, cfg.Model.MinTrainingSamples)
}

func TestDatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://other:5432/db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://other:5432/db", cfg.Database.DSN)
}
