// Package config provides configuration loading and validation for the hiring board.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default values applied by MergeWithDefaults
const (
	DefaultPort               = 8080
	DefaultJobSnapshotLimit   = 10
	DefaultEnrichCacheSize    = 512
	DefaultResubscribeInitial = 500 * time.Millisecond
	DefaultResubscribeMax     = 30 * time.Second
)

// Duration is a time.Duration read from strings such as "500ms" in both
// JSON and the environment.
type Duration time.Duration

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the service configuration. Values come from an optional JSON
// file, then the environment, then defaults.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty" env:"DATABASE_URL"`
	Port        int    `json:"port,omitempty"         env:"PORT"`

	// Sync
	JobSnapshotLimit   int      `json:"job_snapshot_limit,omitempty"  env:"HIRING_BOARD_JOB_SNAPSHOT_LIMIT"`
	EnrichCacheSize    int      `json:"enrich_cache_size,omitempty"   env:"HIRING_BOARD_ENRICH_CACHE_SIZE"`
	ResubscribeInitial Duration `json:"resubscribe_initial,omitempty" env:"HIRING_BOARD_RESUBSCRIBE_INITIAL"`
	ResubscribeMax     Duration `json:"resubscribe_max,omitempty"     env:"HIRING_BOARD_RESUBSCRIBE_MAX"`

	// HTTP
	AllowedOrigins []string `json:"allowed_origins,omitempty" env:"HIRING_BOARD_ALLOWED_ORIGINS" envSeparator:","`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Load reads the optional config file at path, overlays the environment,
// fills defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// ApplyEnv overrides fields whose environment variable is set
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Port:               DefaultPort,
		JobSnapshotLimit:   DefaultJobSnapshotLimit,
		EnrichCacheSize:    DefaultEnrichCacheSize,
		ResubscribeInitial: Duration(DefaultResubscribeInitial),
		ResubscribeMax:     Duration(DefaultResubscribeMax),
	}
}

// Validate checks that the configuration has valid values.
// DatabaseURL is not required here; commands that need it check it.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535, got %d", c.Port)
	}
	if c.JobSnapshotLimit < 0 {
		return fmt.Errorf("config error: 'job_snapshot_limit' must be non-negative")
	}
	if c.EnrichCacheSize < 0 {
		return fmt.Errorf("config error: 'enrich_cache_size' must be non-negative")
	}
	if c.ResubscribeInitial < 0 || c.ResubscribeMax < 0 {
		return fmt.Errorf("config error: resubscribe intervals must be non-negative")
	}
	if c.ResubscribeMax != 0 && c.ResubscribeInitial > c.ResubscribeMax {
		return fmt.Errorf("config error: 'resubscribe_initial' exceeds 'resubscribe_max'")
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.JobSnapshotLimit == 0 {
		result.JobSnapshotLimit = defaults.JobSnapshotLimit
	}
	if result.EnrichCacheSize == 0 {
		result.EnrichCacheSize = defaults.EnrichCacheSize
	}
	if result.ResubscribeInitial == 0 {
		result.ResubscribeInitial = defaults.ResubscribeInitial
	}
	if result.ResubscribeMax == 0 {
		result.ResubscribeMax = defaults.ResubscribeMax
	}
	if len(result.AllowedOrigins) == 0 {
		result.AllowedOrigins = defaults.AllowedOrigins
	}

	return result
}
