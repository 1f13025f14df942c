package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Rule limits one method on one path. A Path ending in "/" matches every
// path below it.
type Rule struct {
	Path   string
	Method string
	Limit  int           // requests per Window
	Window time.Duration
	Burst  int // bucket capacity, Limit when zero
}

func (r Rule) matches(path, method string) bool {
	if r.Method != method {
		return false
	}
	if strings.HasSuffix(r.Path, "/") {
		return strings.HasPrefix(path, r.Path)
	}
	return r.Path == path
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	DefaultLimit    int           `env:"RATE_LIMIT_DEFAULT_LIMIT" envDefault:"600"`
	DefaultWindow   time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW" envDefault:"1m"`
	CleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
	Allow           []string      `env:"RATE_LIMIT_WHITELIST" envSeparator:","`
	Deny            []string      `env:"RATE_LIMIT_BLACKLIST" envSeparator:","`
	Rules           []Rule        `env:"-"`
}

// LoadConfig reads the limiter settings from the environment and attaches
// the default rules.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("rate limit config: %w", err)
	}
	cfg.Allow = trimAll(cfg.Allow)
	cfg.Deny = trimAll(cfg.Deny)
	cfg.Rules = DefaultRules()
	return &cfg, nil
}

// DefaultRules returns the per-endpoint limits for the board API.
func DefaultRules() []Rule {
	return []Rule{
		// a refresh refetches both snapshots and drops the enrichment caches
		{Path: "/board/refresh", Method: http.MethodPost, Limit: 6, Window: time.Minute, Burst: 2},
		{Path: "/board/stream", Method: http.MethodGet, Limit: 30, Window: time.Minute, Burst: 5},

		{Path: "/jobs", Method: http.MethodPost, Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/jobs/", Method: http.MethodPost, Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/jobs/", Method: http.MethodPut, Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/jobs/", Method: http.MethodDelete, Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/applications/", Method: http.MethodPut, Limit: 120, Window: time.Minute, Burst: 20},
		{Path: "/applications/", Method: http.MethodDelete, Limit: 60, Window: time.Minute, Burst: 10},
	}
}

// match returns the first rule for path and method. GET /health is never
// limited.
func (c *Config) match(path, method string) (Rule, bool) {
	if path == "/health" && method == http.MethodGet {
		return Rule{}, true
	}
	for _, r := range c.Rules {
		if r.matches(path, method) {
			return r, true
		}
	}
	return Rule{}, false
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
