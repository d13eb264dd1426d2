package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8084", cfg.Address())
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, []string{"http://localhost:8084"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, 60*time.Second, cfg.Sources.RefreshInterval)
	assert.Equal(t, "two-way", cfg.Pipeline.Policy)
	assert.Equal(t, 6000.0, cfg.Pipeline.ThresholdLow)
	assert.Equal(t, 10000.0, cfg.Pipeline.ThresholdHigh)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("ZE_SERVER_PORT", "9090")
	t.Setenv("ZE_LOG_LEVEL", "debug")
	t.Setenv("ZE_SECURITY_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("ZE_SOURCES_POS", "gs://exports/pos.csv")
	t.Setenv("ZE_SOURCES_REFRESH_INTERVAL", "5m")
	t.Setenv("ZE_PIPELINE_POLICY", "three-way")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.Equal(t, "gs://exports/pos.csv", cfg.Sources.POS)
	assert.Equal(t, 5*time.Minute, cfg.Sources.RefreshInterval)
	assert.Equal(t, "three-way", cfg.Pipeline.Policy)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ze.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
sources:
  firms: https://example.com/firms.csv
  fetch_timeout: 3s
pipeline:
  granularity: month
  threshold_low: 100
  threshold_high: 200
`), 0o600))
	t.Setenv("ZE_CONFIG_FILE", path)
	t.Setenv("ZE_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "https://example.com/firms.csv", cfg.Sources.Firms)
	assert.Equal(t, "data/pos.csv", cfg.Sources.POS)
	assert.Equal(t, 3*time.Second, cfg.Sources.FetchTimeout)
	assert.Equal(t, "month", cfg.Pipeline.Granularity)
	assert.Equal(t, 100.0, cfg.Pipeline.ThresholdLow)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("ZE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port out of range", "ZE_SERVER_PORT", "70000"},
		{"unknown log level", "ZE_LOG_LEVEL", "verbose"},
		{"unknown log format", "ZE_LOG_FORMAT", "xml"},
		{"zero rps", "ZE_SECURITY_RATE_LIMIT_RPS", "0"},
		{"negative retries", "ZE_SOURCES_RETRIES", "-1"},
		{"refresh too fast", "ZE_SOURCES_REFRESH_INTERVAL", "10ms"},
		{"unknown granularity", "ZE_PIPELINE_GRANULARITY", "week"},
		{"unknown policy", "ZE_PIPELINE_POLICY", "median"},
		{"inverted thresholds", "ZE_PIPELINE_THRESHOLD_HIGH", "10"},
		{"unknown exporter", "ZE_TRACING_EXPORTER", "jaeger"},
		{"sample ratio", "ZE_TRACING_SAMPLE_RATIO", "2"},
		{"malformed duration", "ZE_SERVER_READ_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
