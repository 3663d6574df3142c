package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the mathwalk configuration (mathwalk.yaml).
type Config struct {
	Title     string          `yaml:"title"`
	Lessons   string          `yaml:"lessons"` // Lesson file or directory, relative to the config file
	Server    ServerConfig    `yaml:"server"`
	Runtime   RuntimeSettings `yaml:"runtime"`
	Source    SourceConfig    `yaml:"source"`
	Output    OutputConfig    `yaml:"output"`
	Features  FeaturesConfig  `yaml:"features"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains server settings
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
}

// RuntimeSettings selects and tunes the interpreter backend.
type RuntimeSettings struct {
	Backend     string   `yaml:"backend"`                // "starlark", "exec" or "wasi"
	Packages    []string `yaml:"packages"`               // Loaded once per session before Run is enabled
	RunTimeout  string   `yaml:"run_timeout,omitempty"`  // Per-run limit (e.g., "10s"). Empty = no limit
	MaxSteps    uint64   `yaml:"max_steps,omitempty"`    // Starlark execution step budget. 0 = unlimited
	Python      string   `yaml:"python,omitempty"`       // For exec: interpreter binary (default: python3)
	WasmModule  string   `yaml:"wasm_module,omitempty"`  // For wasi: path to the interpreter .wasm
	PackagesDir string   `yaml:"packages_dir,omitempty"` // For wasi: directory holding one subdirectory per package
}

// SourceConfig tunes how step script references are fetched.
type SourceConfig struct {
	Timeout  string `yaml:"timeout,omitempty"`   // Fetch timeout (default: 10s)
	CacheTTL string `yaml:"cache_ttl,omitempty"` // Cache successful fetches (e.g., "5m"). Empty = disabled
}

// OutputConfig holds output panel settings handed to the client.
type OutputConfig struct {
	MinHeight      int    `yaml:"min_height"`
	MaxHeight      int    `yaml:"max_height"`
	ErrorHighlight string `yaml:"error_highlight,omitempty"` // How long error styling stays (default: 2s)
}

// FeaturesConfig contains feature flags
type FeaturesConfig struct {
	HotReload bool `yaml:"hot_reload"`
}

// RateLimitConfig limits run requests per session and HTTP requests per IP.
type RateLimitConfig struct {
	RunsPerSecond float64 `yaml:"runs_per_second"`
	Burst         int     `yaml:"burst"`
	RequestsPerIP float64 `yaml:"requests_per_ip,omitempty"` // HTTP requests per second per IP. 0 = default (10)
	MaxTrackedIPs int     `yaml:"max_tracked_ips,omitempty"` // LRU size of the per-IP limiter. 0 = default (10000)
}

// LoggingConfig configures additional log sinks.
type LoggingConfig struct {
	File string `yaml:"file,omitempty"` // JSON log file, in addition to stderr
}

// Supported interpreter backends.
const (
	BackendStarlark = "starlark"
	BackendExec     = "exec"
	BackendWASI     = "wasi"
)

// ConfigFileName is the config file looked up by LoadFromDir.
const ConfigFileName = "mathwalk.yaml"

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Neural Network Math",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Runtime: RuntimeSettings{
			Backend:  BackendStarlark,
			Packages: []string{"numpy"},
			Python:   "python3",
		},
		Output: OutputConfig{
			MinHeight: 60,
			MaxHeight: 600,
		},
		Features: FeaturesConfig{
			HotReload: true,
		},
		RateLimit: RateLimitConfig{
			RunsPerSecond: 2,
			Burst:         4,
		},
	}
}

// GetRunTimeout returns the per-run timeout (0 = none)
func (r RuntimeSettings) GetRunTimeout() time.Duration {
	return parseDuration(r.RunTimeout, 0)
}

// Resolve returns the backend and packages a tutorial runs with: the
// tutorial's own choices win over the configured ones.
func (r RuntimeSettings) Resolve(backend string, packages []string) (string, []string) {
	if backend == "" {
		backend = r.Backend
	}
	if len(packages) == 0 {
		packages = r.Packages
	}
	return backend, packages
}

// GetPython returns the exec backend interpreter (default: python3)
func (r RuntimeSettings) GetPython() string {
	if r.Python == "" {
		return "python3"
	}
	return r.Python
}

// GetTimeout returns the fetch timeout (default: 10s)
func (s SourceConfig) GetTimeout() time.Duration {
	return parseDuration(s.Timeout, 10*time.Second)
}

// IsCacheEnabled returns true if fetched scripts are cached
func (s SourceConfig) IsCacheEnabled() bool {
	return s.GetCacheTTL() > 0
}

// GetCacheTTL returns the cache TTL (0 if caching is disabled)
func (s SourceConfig) GetCacheTTL() time.Duration {
	return parseDuration(s.CacheTTL, 0)
}

// GetErrorHighlight returns how long error styling stays (default: 2s)
func (o OutputConfig) GetErrorHighlight() time.Duration {
	return parseDuration(o.ErrorHighlight, 2*time.Second)
}

// GetRequestsPerIP returns the per-IP HTTP rate (default: 10/s)
func (r RateLimitConfig) GetRequestsPerIP() float64 {
	if r.RequestsPerIP <= 0 {
		return 10
	}
	return r.RequestsPerIP
}

// GetMaxTrackedIPs returns how many client IPs the HTTP limiter tracks (default: 10000)
func (r RateLimitConfig) GetMaxTrackedIPs() int {
	if r.MaxTrackedIPs <= 0 {
		return 10000
	}
	return r.MaxTrackedIPs
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// Validate checks settings that would otherwise fail late, at session start.
func (c *Config) Validate() error {
	switch c.Runtime.Backend {
	case BackendStarlark, BackendExec:
	case BackendWASI:
		if c.Runtime.WasmModule == "" {
			return fmt.Errorf("runtime.wasm_module is required for the %q backend", BackendWASI)
		}
	default:
		return fmt.Errorf("unknown runtime.backend %q (want %s, %s or %s)",
			c.Runtime.Backend, BackendStarlark, BackendExec, BackendWASI)
	}

	if c.Output.MinHeight <= 0 || c.Output.MaxHeight < c.Output.MinHeight {
		return fmt.Errorf("output heights must satisfy 0 < min_height <= max_height (got %d, %d)",
			c.Output.MinHeight, c.Output.MaxHeight)
	}
	if c.RateLimit.RunsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

// Load loads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Lessons != "" && !filepath.IsAbs(config.Lessons) {
		config.Lessons = filepath.Join(filepath.Dir(configPath), config.Lessons)
	}

	return config, nil
}

// LoadFromDir looks for mathwalk.yaml in the given directory.
// If none is found, returns the default configuration.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, ConfigFileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
