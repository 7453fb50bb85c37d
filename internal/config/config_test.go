package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, RunModeAll, cfg.RunMode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 100, cfg.Batch.MaxFailures)
	assert.Equal(t, 500000, cfg.Extraction.MaxChars)
	assert.Equal(t, 16384, cfg.Extraction.MaxTokens)
	assert.InDelta(t, 0.1, cfg.Extraction.Temperature, 1e-9)
	assert.Equal(t, 120*time.Second, cfg.Extraction.Timeout)
	assert.Equal(t, "google/gemini-3-flash-preview", cfg.Completion.Model)
	assert.Equal(t, "google/gemini-2.5-flash", cfg.Completion.FallbackModel)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Completion.BaseURL)
	assert.Equal(t, "reports", cfg.Knowledge.Collection)
	assert.Equal(t, domain.KnowledgeBackendRAGFlow, cfg.KnowledgeBackend())
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oc-hub.yaml")
	yaml := `
run_mode: worker
library_root: /srv/library
batch:
  max_concurrency: 8
extraction:
  timeout: 90s
audit:
  enabled: true
  reextract_on_reject: true
knowledge:
  backend: chromem
  persist_dir: /srv/chromem
scheduler:
  enabled: true
  scan_interval: 6h
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("BATCH_MAX_CONCURRENCY", "3")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RunModeWorker, cfg.RunMode)
	assert.Equal(t, "/srv/library", cfg.LibraryRoot)
	// Environment wins over the file
	assert.Equal(t, 3, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 90*time.Second, cfg.Extraction.Timeout)
	assert.True(t, cfg.Audit.Enabled)
	assert.True(t, cfg.Audit.ReextractOnReject)
	assert.Equal(t, domain.KnowledgeBackendChromem, cfg.KnowledgeBackend())
	assert.Equal(t, "/srv/chromem", cfg.Knowledge.PersistDir)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.ScanInterval)
	assert.Equal(t, "sk-or-env", cfg.Completion.APIKey)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0o644))
	t.Setenv("OC_HUB_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("PORT", "eighty")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Batch.MaxConcurrency = 0 }},
		{"unknown run mode", func(c *Config) { c.RunMode = "cron" }},
		{"unknown provider", func(c *Config) { c.Completion.Provider = "anthropic-direct" }},
		{"unknown embedding provider", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"unknown backend", func(c *Config) { c.Knowledge.Backend = "pinecone" }},
		{"ragflow without url", func(c *Config) { c.Knowledge.BaseURL = "" }},
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"scheduler without interval", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.ScanInterval = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestValidate_ProviderWrapsSentinel(t *testing.T) {
	cfg := Default()
	cfg.Completion.Provider = "mistral"
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidProvider)
}

func TestSettingsConversion(t *testing.T) {
	cfg := Default()
	cfg.Completion.APIKey = "sk"
	cfg.Completion.RequestsPerSecond = 2
	cfg.Embedding.APIKey = "ek"
	cfg.Embedding.Dimensions = 256

	cs := cfg.CompletionSettings()
	assert.Equal(t, domain.AIProviderOpenRouter, cs.Provider)
	assert.True(t, cs.IsConfigured())
	assert.Equal(t, 2.0, cs.RequestsPerSecond)
	assert.Equal(t, "http://localhost:8080", cs.AppURL)

	es := cfg.EmbeddingSettings()
	assert.Equal(t, domain.AIProviderOpenAI, es.Provider)
	assert.Equal(t, 256, es.Dimensions)
	assert.True(t, es.IsConfigured())
}
