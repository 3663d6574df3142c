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

	assert.Equal(t, BackendStarlark, cfg.Runtime.Backend)
	assert.Equal(t, []string{"numpy"}, cfg.Runtime.Packages)
	assert.Equal(t, 60, cfg.Output.MinHeight)
	assert.Equal(t, 600, cfg.Output.MaxHeight)
	assert.Equal(t, 2*time.Second, cfg.Output.GetErrorHighlight())
	assert.Equal(t, time.Duration(0), cfg.Runtime.GetRunTimeout())
	assert.Equal(t, 10*time.Second, cfg.Source.GetTimeout())
	assert.False(t, cfg.Source.IsCacheEnabled())
	assert.True(t, cfg.Features.HotReload)
	assert.NoError(t, cfg.Validate())
}

func TestDurationGetters(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"empty", "", 10 * time.Second},
		{"invalid", "soon", 10 * time.Second},
		{"negative", "-1s", 10 * time.Second},
		{"30 seconds", "30s", 30 * time.Second},
		{"1 minute", "1m", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := SourceConfig{Timeout: tt.value}
			assert.Equal(t, tt.expected, cfg.GetTimeout())
		})
	}
}

func TestSourceConfigGetCacheTTL(t *testing.T) {
	assert.Equal(t, time.Duration(0), SourceConfig{}.GetCacheTTL())
	assert.Equal(t, time.Duration(0), SourceConfig{CacheTTL: "invalid"}.GetCacheTTL())
	assert.Equal(t, 5*time.Minute, SourceConfig{CacheTTL: "5m"}.GetCacheTTL())
	assert.True(t, SourceConfig{CacheTTL: "5m"}.IsCacheEnabled())
}

func TestRuntimeSettingsGetPython(t *testing.T) {
	assert.Equal(t, "python3", RuntimeSettings{}.GetPython())
	assert.Equal(t, "/usr/bin/python3.12", RuntimeSettings{Python: "/usr/bin/python3.12"}.GetPython())
}

func TestRateLimitGetRequestsPerIP(t *testing.T) {
	assert.Equal(t, 10.0, RateLimitConfig{}.GetRequestsPerIP())
	assert.Equal(t, 25.0, RateLimitConfig{RequestsPerIP: 25}.GetRequestsPerIP())
}

func TestRateLimitGetMaxTrackedIPs(t *testing.T) {
	assert.Equal(t, 10000, RateLimitConfig{}.GetMaxTrackedIPs())
	assert.Equal(t, 10000, RateLimitConfig{MaxTrackedIPs: -3}.GetMaxTrackedIPs())
	assert.Equal(t, 500, RateLimitConfig{MaxTrackedIPs: 500}.GetMaxTrackedIPs())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Runtime.Backend = "lua" }, "unknown runtime.backend"},
		{"wasi without module", func(c *Config) { c.Runtime.Backend = BackendWASI }, "wasm_module is required"},
		{"inverted heights", func(c *Config) { c.Output.MinHeight = 700 }, "output heights"},
		{"negative burst", func(c *Config) { c.RateLimit.Burst = -1 }, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}

	cfg := DefaultConfig()
	cfg.Runtime.Backend = BackendWASI
	cfg.Runtime.WasmModule = "python.wasm"
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `title: Attention
lessons: lessons
runtime:
  backend: exec
  run_timeout: 5s
output:
  max_height: 400
source:
  cache_ttl: 1m
`
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "Attention", cfg.Title)
	assert.Equal(t, filepath.Join(dir, "lessons"), cfg.Lessons)
	assert.Equal(t, BackendExec, cfg.Runtime.Backend)
	assert.Equal(t, 5*time.Second, cfg.Runtime.GetRunTimeout())
	assert.Equal(t, 400, cfg.Output.MaxHeight)
	assert.Equal(t, 60, cfg.Output.MinHeight, "unset fields keep defaults")
	assert.Equal(t, time.Minute, cfg.Source.GetCacheTTL())
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	cfg := DefaultConfig()
	cfg.Title = "Saved"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Saved", loaded.Title)
}

func TestRuntimeResolve(t *testing.T) {
	rs := RuntimeSettings{Backend: BackendStarlark, Packages: []string{"numpy"}}

	backend, pkgs := rs.Resolve("", nil)
	assert.Equal(t, BackendStarlark, backend)
	assert.Equal(t, []string{"numpy"}, pkgs)

	backend, pkgs = rs.Resolve(BackendExec, []string{"scipy"})
	assert.Equal(t, BackendExec, backend)
	assert.Equal(t, []string{"scipy"}, pkgs)
}
