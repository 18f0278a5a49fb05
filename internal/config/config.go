// Package config loads docsync settings from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the config file, the
// NOTION_TOKEN environment variable, then CLI flags (applied by the caller).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/notion"
)

// TokenEnv is the environment variable that supplies the API token.
const TokenEnv = "NOTION_TOKEN"

// Sync strategies.
const (
	StrategyDiff      = "diff"
	StrategyOverwrite = "overwrite"
)

// Conflict policies.
const (
	OnConflictRaise     = "raise"
	OnConflictOverwrite = "overwrite"
)

// Config is the full settings tree.
type Config struct {
	Notion   Notion `yaml:"notion"`
	Sync     Sync   `yaml:"sync"`
	Database string `yaml:"database"`
}

// Notion configures the remote API client.
type Notion struct {
	Token        string        `yaml:"token"`
	BaseURL      string        `yaml:"base_url"`
	Version      string        `yaml:"notion_version"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	Timeout      time.Duration `yaml:"timeout"`
	Retry        Retry         `yaml:"retry"`
}

// Retry configures backoff for transient API failures.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Jitter      bool          `yaml:"jitter"`
}

// Sync configures planning and execution.
type Sync struct {
	Strategy      string  `yaml:"strategy"`
	OnConflict    string  `yaml:"on_conflict"`
	BatchSize     int     `yaml:"batch_size"`
	MinMatchRatio float64 `yaml:"min_match_ratio"`
	Concurrency   int     `yaml:"concurrency"`
}

// Default returns the built-in settings.
func Default() Config {
	retry := notion.DefaultRetryPolicy()
	return Config{
		Notion: Notion{
			BaseURL:      notion.DefaultBaseURL,
			Version:      notion.DefaultVersion,
			RateLimitRPS: notion.DefaultRPS,
			Timeout:      notion.DefaultTimeout,
			Retry: Retry{
				MaxAttempts: retry.MaxAttempts,
				BaseDelay:   retry.BaseDelay,
				MaxDelay:    retry.MaxDelay,
				Jitter:      retry.Jitter,
			},
		},
		Sync: Sync{
			Strategy:      StrategyDiff,
			OnConflict:    OnConflictRaise,
			BatchSize:     100,
			MinMatchRatio: 0.3,
			Concurrency:   4,
		},
		Database: "docsync.db",
	}
}

// Load reads the file at path over the defaults, applies the environment
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if token := os.Getenv(TokenEnv); token != "" {
		cfg.Notion.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ValidationError reports one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks every setting and returns all problems joined, or nil.
// The token is not required here; see RequireToken.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := checkBaseURL(c.Notion.BaseURL); err != nil {
		bad("notion.base_url", "%v", err)
	}
	if strings.TrimSpace(c.Notion.Version) == "" {
		bad("notion.notion_version", "must not be empty")
	}
	if c.Notion.RateLimitRPS <= 0 {
		bad("notion.rate_limit_rps", "must be positive, got %v", c.Notion.RateLimitRPS)
	}
	if c.Notion.Timeout <= 0 {
		bad("notion.timeout", "must be positive, got %v", c.Notion.Timeout)
	}

	r := c.Notion.Retry
	if r.MaxAttempts < 1 {
		bad("notion.retry.max_attempts", "must be at least 1, got %d", r.MaxAttempts)
	}
	if r.BaseDelay <= 0 {
		bad("notion.retry.base_delay", "must be positive, got %v", r.BaseDelay)
	}
	if r.MaxDelay < r.BaseDelay {
		bad("notion.retry.max_delay", "must not be below base_delay (%v), got %v", r.BaseDelay, r.MaxDelay)
	}

	switch c.Sync.Strategy {
	case StrategyDiff, StrategyOverwrite:
	default:
		bad("sync.strategy", "must be %q or %q, got %q", StrategyDiff, StrategyOverwrite, c.Sync.Strategy)
	}
	switch c.Sync.OnConflict {
	case OnConflictRaise, OnConflictOverwrite:
	default:
		bad("sync.on_conflict", "must be %q or %q, got %q", OnConflictRaise, OnConflictOverwrite, c.Sync.OnConflict)
	}
	if c.Sync.BatchSize < 1 || c.Sync.BatchSize > 100 {
		bad("sync.batch_size", "must be between 1 and 100, got %d", c.Sync.BatchSize)
	}
	if c.Sync.MinMatchRatio < 0 || c.Sync.MinMatchRatio > 1 {
		bad("sync.min_match_ratio", "must be between 0 and 1, got %v", c.Sync.MinMatchRatio)
	}
	if c.Sync.Concurrency < 1 {
		bad("sync.concurrency", "must be at least 1, got %d", c.Sync.Concurrency)
	}
	if strings.TrimSpace(c.Database) == "" {
		bad("database", "must not be empty")
	}

	return errors.Join(errs...)
}

// RequireToken fails when no API token is configured.
func (c *Config) RequireToken() error {
	if c.Notion.Token == "" {
		return &ValidationError{
			Field:   "notion.token",
			Message: fmt.Sprintf("required; set it in the config file or %s", TokenEnv),
		}
	}
	return nil
}

// ClientConfig maps the settings onto a notion.Config.
func (c *Config) ClientConfig() notion.Config {
	return notion.Config{
		Token:        c.Notion.Token,
		BaseURL:      c.Notion.BaseURL,
		Version:      c.Notion.Version,
		RateLimitRPS: c.Notion.RateLimitRPS,
		Timeout:      c.Notion.Timeout,
		Retry: notion.RetryPolicy{
			MaxAttempts: c.Notion.Retry.MaxAttempts,
			BaseDelay:   c.Notion.Retry.BaseDelay,
			MaxDelay:    c.Notion.Retry.MaxDelay,
			Jitter:      c.Notion.Retry.Jitter,
		},
	}
}

// checkBaseURL allows https anywhere and plain http only for loopback
// hosts.
func checkBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("plain http is only allowed for localhost, got %q", raw)
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
