package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
  host: "0.0.0.0"
analysis:
  max_urls: 3
  score_timeout: 10s
scoring:
  endpoint: "http://scorer.internal/"
sessions:
  retention: 30m
redis:
  url: "redis://localhost:6379/0"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3, cfg.Analysis.MaxURLs)
	assert.Equal(t, 10*time.Second, cfg.Analysis.ScoreTimeout)
	assert.Equal(t, "http://scorer.internal/", cfg.Scoring.Endpoint)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.Retention)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)

	// Defaults should still be applied for unspecified fields.
	assert.Equal(t, 64, cfg.Analysis.EventBuffer)
	assert.Equal(t, time.Minute, cfg.Sessions.SweepInterval)
	assert.Equal(t, "ratemysite:results", cfg.Redis.Channel)
	assert.Equal(t, 3, cfg.Monitor.FailureThreshold)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Analysis.MaxURLs)
	assert.Equal(t, 45*time.Second, cfg.Analysis.ScoreTimeout)
	assert.Equal(t, "https://www.ratemysite.xyz/", cfg.Scoring.Endpoint)
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server: [not, a, map"), 0644))

	_, err := Load(cfgPath)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantHost string
		wantPort int
		wantURL  string
	}{
		{
			name:     "none",
			env:      map[string]string{},
			wantHost: "127.0.0.1",
			wantPort: 5000,
		},
		{
			name:     "port",
			env:      map[string]string{"PORT": "8081"},
			wantHost: "127.0.0.1",
			wantPort: 8081,
		},
		{
			name:     "bad port ignored",
			env:      map[string]string{"PORT": "abc"},
			wantHost: "127.0.0.1",
			wantPort: 5000,
		},
		{
			name:     "railway binds all interfaces",
			env:      map[string]string{"RAILWAY_ENVIRONMENT": "production"},
			wantHost: "0.0.0.0",
			wantPort: 5000,
		},
		{
			name:     "redis",
			env:      map[string]string{"REDIS_URL": "redis://cache:6379"},
			wantHost: "127.0.0.1",
			wantPort: 5000,
			wantURL:  "redis://cache:6379",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.applyEnv(func(k string) string { return tt.env[k] })
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantURL, cfg.Redis.URL)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RATEMYSITE_TEST_DOTENV=from-file\n"), 0644))
	t.Setenv("RATEMYSITE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("RATEMYSITE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("RATEMYSITE_TEST_DOTENV"))
}

func TestLoadDotEnvNoFiles(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestMemoryBudgetBytes(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, uint64(512<<20), cfg.MemoryBudgetBytes())

	cfg.Sessions.MemoryBudgetMB = 0
	assert.Zero(t, cfg.MemoryBudgetBytes())
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "HOST", "RAILWAY_ENVIRONMENT", "REDIS_URL", "RATEMYSITE_URL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	want := defaultConfig()
	want.Scoring.UserAgent = cfg.Scoring.UserAgent
	assert.Equal(t, want, cfg)
}
