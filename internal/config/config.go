// ABOUTME: Configuration loading and parsing for the chatstore persistence layer
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chatstore configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Legacy   LegacyConfig   `yaml:"legacy"`
	Retry    RetryConfig    `yaml:"retry"`
	Queue    QueueConfig    `yaml:"queue"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds the structured store location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LegacyConfig holds the legacy flat store location
type LegacyConfig struct {
	Path string `yaml:"path"`
}

// RetryConfig tunes the per-operation retry policy of the structured store
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DelayRaw string `yaml:"delay"`
}

// QueueConfig tunes the session resumption queue backoff
type QueueConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	BaseDelayRaw string `yaml:"base_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default tuning applied when fields are unset.
const (
	DefaultRetryAttempts    = 3
	DefaultRetryDelay       = 100 * time.Millisecond
	DefaultQueueMaxAttempts = 10
	DefaultQueueBaseDelay   = 500 * time.Millisecond
)

// Default returns a Config carrying the built-in tuning, for callers
// running without a configuration file. Storage paths are left empty.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// SlogLevel maps the configured level name onto slog's levels.
// Unknown names fall back to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func (c *Config) parseDurations() error {
	var err error

	if c.Retry.DelayRaw != "" {
		c.Retry.Delay, err = time.ParseDuration(c.Retry.DelayRaw)
		if err != nil {
			return fmt.Errorf("parsing retry.delay %q: %w", c.Retry.DelayRaw, err)
		}
	}

	if c.Queue.BaseDelayRaw != "" {
		c.Queue.BaseDelay, err = time.ParseDuration(c.Queue.BaseDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing queue.base_delay %q: %w", c.Queue.BaseDelayRaw, err)
		}
	}

	return nil
}

// applyDefaults fills unset tuning fields with the built-in defaults
func (c *Config) applyDefaults() {
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = DefaultRetryAttempts
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = DefaultRetryDelay
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = DefaultQueueMaxAttempts
	}
	if c.Queue.BaseDelay == 0 {
		c.Queue.BaseDelay = DefaultQueueBaseDelay
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
