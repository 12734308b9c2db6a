package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "recursive", cfg.Chunking.Strategy)
	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "l2", cfg.Store.Metric)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  http_port: 9000
chunking:
  strategy: window
  chunk_size: 800
  chunk_overlap: 200
store:
  metric: cosine
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "window", cfg.Chunking.Strategy)
	assert.Equal(t, 800, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "cosine", cfg.Store.Metric)

	// Untouched sections keep their defaults.
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_FileMissing_UsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.HTTPPort, cfg.Server.HTTPPort)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("RAGFLOW_SERVER_HTTP_PORT", "7070")
	t.Setenv("RAGFLOW_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("RAGFLOW_LLM_TIMEOUT", "45s")
	t.Setenv("RAGFLOW_REDIS_ENABLED", "true")
	t.Setenv("RAGFLOW_LOG_OUTPUT_PATHS", "stdout, stderr")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"stdout", "stderr"}, cfg.Log.OutputPaths)
}

func TestLoader_Validator(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(c *Config) error {
		called = true
		return nil
	}).Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"zero chunk size", func(c *Config) { c.Chunking.ChunkSize = 0 }},
		{"overlap >= size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }},
		{"negative overlap", func(c *Config) { c.Chunking.ChunkOverlap = -1 }},
		{"unknown strategy", func(c *Config) { c.Chunking.Strategy = "semantic" }},
		{"unknown metric", func(c *Config) { c.Store.Metric = "dot" }},
		{"zero dimensions", func(c *Config) { c.Store.Dimensions = 0 }},
		{"store embedding dims diverge", func(c *Config) { c.Embedding.Dimensions = 768 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
