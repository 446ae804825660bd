package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-goal-cache/cache"
	"github.com/goliatone/go-goal-cache/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeSQL, cfg.Remote.Mode)

	settings, err := cfg.CacheSettings()
	require.NoError(t, err)
	assert.Equal(t, cache.DefaultTTL, settings.TTL)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
cache:
  ttl: 45s
  kind_ttl:
    accomplishments: 2m
identity:
  retry_after: 10s
remote:
  mode: http
  base_url: https://goals.example.com
  timeout: 5s
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	settings, err := cfg.CacheSettings()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, settings.TTLFor(model.KindNotes))
	assert.Equal(t, 2*time.Minute, settings.TTLFor(model.KindAccomplishments))
	assert.Equal(t, 10000, settings.Capacity, "unset fields keep defaults")

	assert.Equal(t, 10*time.Second, cfg.RetryAfter())
	assert.Equal(t, 5*time.Second, cfg.RemoteTimeout())
	assert.Equal(t, "https://goals.example.com", cfg.Remote.BaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "bad duration", content: "cache:\n  ttl: soon\n", want: "TTL"},
		{name: "bad mode", content: "remote:\n  mode: carrier-pigeon\n", want: "Mode"},
		{name: "http without url", content: "remote:\n  mode: http\n", want: "BaseURL"},
		{name: "bad level", content: "logging:\n  level: loud\n", want: "Level"},
		{name: "bad yaml", content: "cache: [", want: "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSampleParses(t *testing.T) {
	cfg := Default()
	require.NoError(t, yaml.Unmarshal([]byte(Sample()), cfg))
	require.NoError(t, cfg.Validate())

	_, err := cfg.CacheSettings()
	require.NoError(t, err)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.False(t, strings.Contains(out, "hidden"))
	assert.Contains(t, out, `"msg":"shown"`)
}
