// ABOUTME: Configuration loading and parsing for homebase
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/homebase/internal/dedupe"
	"github.com/2389/homebase/internal/store"
	"github.com/2389/homebase/internal/syncer"
)

// DefaultDatabasePath is used when database.path is not set
const DefaultDatabasePath = "homebase.db"

// Config represents the complete homebase configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Sync     SyncConfig     `yaml:"sync" toml:"sync"`
	Ingest   IngestConfig   `yaml:"ingest" toml:"ingest"`
	User     UserConfig     `yaml:"user" toml:"user"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path        string        `yaml:"path" toml:"path"`
	Driver      string        `yaml:"driver" toml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	BusyTimeout time.Duration `yaml:"-" toml:"-"`

	BusyTimeoutRaw string `yaml:"busy_timeout" toml:"busy_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// SyncConfig controls the outbox delivery worker
type SyncConfig struct {
	BatchSize   int     `yaml:"batch_size" toml:"batch_size"`
	MaxAttempts int     `yaml:"max_attempts" toml:"max_attempts"`
	Jitter      float64 `yaml:"jitter" toml:"jitter"`

	Interval       time.Duration `yaml:"-" toml:"-"`
	AttemptTimeout time.Duration `yaml:"-" toml:"-"`
	BackoffBase    time.Duration `yaml:"-" toml:"-"`
	BackoffMax     time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IntervalRaw       string `yaml:"interval" toml:"interval"`
	AttemptTimeoutRaw string `yaml:"attempt_timeout" toml:"attempt_timeout"`
	BackoffBaseRaw    string `yaml:"backoff_base" toml:"backoff_base"`
	BackoffMaxRaw     string `yaml:"backoff_max" toml:"backoff_max"`
}

// IngestConfig controls duplicate suppression for server payloads
type IngestConfig struct {
	DedupeSize int           `yaml:"dedupe_size" toml:"dedupe_size"`
	DedupeTTL  time.Duration `yaml:"-" toml:"-"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// UserConfig identifies the local user
type UserConfig struct {
	ID string `yaml:"id" toml:"id"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        DefaultDatabasePath,
			Driver:      store.DriverModernc,
			BusyTimeout: store.DefaultBusyTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Sync: SyncConfig{
			BatchSize:      syncer.DefaultBatchSize,
			MaxAttempts:    syncer.DefaultMaxAttempts,
			Jitter:         0.2,
			Interval:       syncer.DefaultInterval,
			AttemptTimeout: syncer.DefaultAttemptTimeout,
			BackoffBase:    syncer.DefaultBackoffBase,
			BackoffMax:     syncer.DefaultBackoffMax,
		},
		Ingest: IngestConfig{
			DedupeSize: dedupe.DefaultMaxSize,
			DedupeTTL:  dedupe.DefaultTTL,
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, Format(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Format returns "toml" or "yaml" based on the file extension
func Format(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "toml"
	}
	return "yaml"
}

// Parse decodes raw configuration in the given format ("yaml" or "toml")
func Parse(data []byte, format string) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	switch format {
	case "toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case "yaml", "yml", "":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case store.DriverModernc, store.DriverCGO:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", store.DriverModernc, store.DriverCGO, c.Database.Driver)
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("database.busy_timeout must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be at least 1")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.Jitter < 0 || c.Sync.Jitter > syncer.MaxJitter {
		return fmt.Errorf("sync.jitter must be between 0 and %v", syncer.MaxJitter)
	}
	if c.Sync.Interval <= 0 || c.Sync.AttemptTimeout <= 0 {
		return fmt.Errorf("sync.interval and sync.attempt_timeout must be positive")
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax <= 0 {
		return fmt.Errorf("sync.backoff_base and sync.backoff_max must be positive")
	}
	if c.Sync.BackoffBase > c.Sync.BackoffMax {
		return fmt.Errorf("sync.backoff_base (%s) exceeds sync.backoff_max (%s)", c.Sync.BackoffBase, c.Sync.BackoffMax)
	}

	if c.Ingest.DedupeSize < 1 {
		return fmt.Errorf("ingest.dedupe_size must be at least 1")
	}
	if c.Ingest.DedupeTTL <= 0 {
		return fmt.Errorf("ingest.dedupe_ttl must be positive")
	}

	return nil
}

// StoreOptions returns the options for opening the database
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:      c.Database.Driver,
		BusyTimeout: c.Database.BusyTimeout,
	}
}

// WorkerConfig returns the sync worker configuration for the configured user
func (c *Config) WorkerConfig() syncer.Config {
	return syncer.Config{
		FromUser:       c.User.ID,
		BatchSize:      c.Sync.BatchSize,
		Interval:       c.Sync.Interval,
		AttemptTimeout: c.Sync.AttemptTimeout,
		MaxAttempts:    c.Sync.MaxAttempts,
		Backoff: syncer.Backoff{
			Base:   c.Sync.BackoffBase,
			Max:    c.Sync.BackoffMax,
			Jitter: c.Sync.Jitter,
		},
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"database.busy_timeout", cfg.Database.BusyTimeoutRaw, &cfg.Database.BusyTimeout},
		{"sync.interval", cfg.Sync.IntervalRaw, &cfg.Sync.Interval},
		{"sync.attempt_timeout", cfg.Sync.AttemptTimeoutRaw, &cfg.Sync.AttemptTimeout},
		{"sync.backoff_base", cfg.Sync.BackoffBaseRaw, &cfg.Sync.BackoffBase},
		{"sync.backoff_max", cfg.Sync.BackoffMaxRaw, &cfg.Sync.BackoffMax},
		{"ingest.dedupe_ttl", cfg.Ingest.DedupeTTLRaw, &cfg.Ingest.DedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
