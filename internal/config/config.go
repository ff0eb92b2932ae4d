package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the homewatch pipeline configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Search   SearchConfig   `yaml:"search"`
	WS       WSConfig       `yaml:"ws"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds cache-store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis (default: memory)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PipelineConfig holds stream, fan-out, and scheduler tunables.
type PipelineConfig struct {
	SweepIntervalSec      int     `yaml:"sweep_interval_sec"`
	DrainIntervalSec      int     `yaml:"drain_interval_sec"`
	MaxConcurrentSearches int64   `yaml:"max_concurrent_searches"`
	SearchTimeoutSec      int     `yaml:"search_timeout_sec"`
	ExceptionalScore      float64 `yaml:"exceptional_score"`
	MatchThreshold        float64 `yaml:"match_threshold"`
	UrgentThreshold       float64 `yaml:"urgent_threshold"`
	PriceDropPct          float64 `yaml:"price_drop_pct"`
	PriceDropFloor        float64 `yaml:"price_drop_floor"`
	UpdateLogSize         int     `yaml:"update_log_size"`
}

// CacheConfig holds predictive cache tunables.
type CacheConfig struct {
	TTLSec           int    `yaml:"ttl_sec"`
	PreloadEnabled   bool   `yaml:"preload_enabled"`
	PreloadDelaySec  int    `yaml:"preload_delay_sec"`
	SearchTimeoutSec int    `yaml:"search_timeout_sec"`
	KeyPrefix        string `yaml:"key_prefix"`
}

// SearchConfig holds external search engine settings. An empty
// base_url disables the engine; searches then return no results.
type SearchConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// WSConfig holds websocket channel tunables.
type WSConfig struct {
	SendBuffer      int `yaml:"send_buffer"`
	PingIntervalSec int `yaml:"ping_interval_sec"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Pipeline.SweepIntervalSec <= 0 {
		c.Pipeline.SweepIntervalSec = 30
	}
	if c.Pipeline.DrainIntervalSec <= 0 {
		c.Pipeline.DrainIntervalSec = 5
	}
	if c.Pipeline.MaxConcurrentSearches <= 0 {
		c.Pipeline.MaxConcurrentSearches = 8
	}
	if c.Pipeline.SearchTimeoutSec <= 0 {
		c.Pipeline.SearchTimeoutSec = 10
	}
	if c.Pipeline.ExceptionalScore <= 0 {
		c.Pipeline.ExceptionalScore = 90
	}
	if c.Pipeline.MatchThreshold <= 0 {
		c.Pipeline.MatchThreshold = 80
	}
	if c.Pipeline.UrgentThreshold <= 0 {
		c.Pipeline.UrgentThreshold = 92
	}
	if c.Pipeline.PriceDropPct <= 0 {
		c.Pipeline.PriceDropPct = 0.05
	}
	if c.Pipeline.PriceDropFloor <= 0 {
		c.Pipeline.PriceDropFloor = 5000
	}
	if c.Pipeline.UpdateLogSize <= 0 {
		c.Pipeline.UpdateLogSize = 100
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 900
	}
	if c.Cache.PreloadDelaySec <= 0 {
		c.Cache.PreloadDelaySec = 60
	}
	if c.Cache.SearchTimeoutSec <= 0 {
		c.Cache.SearchTimeoutSec = 10
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "homewatch:cache:"
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 64
	}
	if c.WS.PingIntervalSec <= 0 {
		c.WS.PingIntervalSec = 10
	}
	if c.WS.ReadTimeoutSec <= 0 {
		c.WS.ReadTimeoutSec = 60
	}
	if c.WS.WriteTimeoutSec <= 0 {
		c.WS.WriteTimeoutSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("database.driver must be \"memory\" or \"redis\", got %q", c.Database.Driver)
	}
	if c.Pipeline.UrgentThreshold < c.Pipeline.MatchThreshold {
		return fmt.Errorf("pipeline.urgent_threshold (%v) must not be below pipeline.match_threshold (%v)",
			c.Pipeline.UrgentThreshold, c.Pipeline.MatchThreshold)
	}
	if c.Pipeline.PriceDropPct >= 1 {
		return fmt.Errorf("pipeline.price_drop_pct must be a fraction below 1, got %v", c.Pipeline.PriceDropPct)
	}
	return nil
}

// SweepInterval returns the stream re-evaluation period.
func (c *PipelineConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// DrainInterval returns the notification drain period.
func (c *PipelineConfig) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalSec) * time.Second
}

// SearchTimeout returns the per-search budget.
func (c *PipelineConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSec) * time.Second
}

// TTL returns the bundle validity window.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// PreloadDelay returns the fixed delay before a scheduled preload runs.
func (c *CacheConfig) PreloadDelay() time.Duration {
	return time.Duration(c.PreloadDelaySec) * time.Second
}

// SearchTimeout returns the budget for preload searches.
func (c *CacheConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSec) * time.Second
}

// Timeout returns the engine HTTP client timeout.
func (c *SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
