// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/2389/homebase/internal/store"
	"github.com/2389/homebase/internal/syncer"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  path: "./test.db"
  driver: "sqlite3"
  busy_timeout: "2s"

logging:
  level: "debug"
  format: "json"

sync:
  batch_size: 10
  interval: "30s"
  attempt_timeout: "5s"
  max_attempts: 4
  backoff_base: "1s"
  backoff_max: "1m"
  jitter: 0.5

ingest:
  dedupe_ttl: "10m"
  dedupe_size: 500

user:
  id: "alice"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Database.Driver != store.DriverCGO {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, store.DriverCGO)
	}
	if cfg.Database.BusyTimeout != 2*time.Second {
		t.Errorf("Database.BusyTimeout = %v, want %v", cfg.Database.BusyTimeout, 2*time.Second)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if cfg.Sync.BatchSize != 10 {
		t.Errorf("Sync.BatchSize = %d, want 10", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("Sync.Interval = %v, want %v", cfg.Sync.Interval, 30*time.Second)
	}
	if cfg.Sync.AttemptTimeout != 5*time.Second {
		t.Errorf("Sync.AttemptTimeout = %v, want %v", cfg.Sync.AttemptTimeout, 5*time.Second)
	}
	if cfg.Sync.MaxAttempts != 4 {
		t.Errorf("Sync.MaxAttempts = %d, want 4", cfg.Sync.MaxAttempts)
	}
	if cfg.Sync.BackoffBase != time.Second || cfg.Sync.BackoffMax != time.Minute {
		t.Errorf("Sync backoff = %v..%v, want 1s..1m", cfg.Sync.BackoffBase, cfg.Sync.BackoffMax)
	}
	if cfg.Sync.Jitter != 0.5 {
		t.Errorf("Sync.Jitter = %v, want 0.5", cfg.Sync.Jitter)
	}
	if cfg.Ingest.DedupeTTL != 10*time.Minute {
		t.Errorf("Ingest.DedupeTTL = %v, want %v", cfg.Ingest.DedupeTTL, 10*time.Minute)
	}
	if cfg.Ingest.DedupeSize != 500 {
		t.Errorf("Ingest.DedupeSize = %d, want 500", cfg.Ingest.DedupeSize)
	}
	if cfg.User.ID != "alice" {
		t.Errorf("User.ID = %q, want %q", cfg.User.ID, "alice")
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[database]
path = "/var/lib/homebase/home.db"

[logging]
level = "warn"

[sync]
batch_size = 3
backoff_max = "30s"

[user]
id = "bob"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/homebase/home.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want default text", cfg.Logging.Format)
	}
	if cfg.Sync.BatchSize != 3 {
		t.Errorf("Sync.BatchSize = %d, want 3", cfg.Sync.BatchSize)
	}
	if cfg.Sync.BackoffMax != 30*time.Second {
		t.Errorf("Sync.BackoffMax = %v, want 30s", cfg.Sync.BackoffMax)
	}
	if cfg.User.ID != "bob" {
		t.Errorf("User.ID = %q, want bob", cfg.User.ID)
	}
}

func TestLoad_DefaultsForMissingFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
user:
  id: "carol"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	want.User.ID = "carol"

	if cfg.Database != want.Database {
		t.Errorf("Database = %+v, want %+v", cfg.Database, want.Database)
	}
	if cfg.Sync != want.Sync {
		t.Errorf("Sync = %+v, want %+v", cfg.Sync, want.Sync)
	}
	if cfg.Ingest != want.Ingest {
		t.Errorf("Ingest = %+v, want %+v", cfg.Ingest, want.Ingest)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("HOMEBASE_TEST_DB", "/tmp/from-env.db")
	t.Setenv("HOMEBASE_TEST_USER", "dave")

	path := writeConfig(t, "config.yaml", `
database:
  path: "${HOMEBASE_TEST_DB}"
user:
  id: "${HOMEBASE_TEST_USER}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/from-env.db")
	}
	if cfg.User.ID != "dave" {
		t.Errorf("User.ID = %q, want dave", cfg.User.ID)
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
database:
  path: "${HOMEBASE_TEST_DEFINITELY_UNSET}"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail when database.path expands to empty")
	}
	if !strings.Contains(err.Error(), "database.path is required") {
		t.Errorf("error = %v, want database.path is required", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "database: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", "[database\npath = 1")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed TOML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
sync:
  interval: "soon"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() should fail on an invalid duration")
	}
	if !strings.Contains(err.Error(), "sync.interval") {
		t.Errorf("error = %v, want it to name sync.interval", err)
	}
}

func TestFormat(t *testing.T) {
	tests := map[string]string{
		"config.toml":  "toml",
		"CONFIG.TOML":  "toml",
		"config.yaml":  "yaml",
		"config.yml":   "yaml",
		"homebase":     "yaml",
		"dir.toml/cfg": "yaml",
	}
	for path, want := range tests {
		if got := Format(path); got != want {
			t.Errorf("Format(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	if _, err := Parse([]byte("{}"), "json"); err == nil {
		t.Fatal("Parse() should reject unknown formats")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"empty path", func(c *Config) { c.Database.Path = "" }, "database.path is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"negative busy timeout", func(c *Config) { c.Database.BusyTimeout = -time.Second }, "busy_timeout"},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"uppercase level", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero batch", func(c *Config) { c.Sync.BatchSize = 0 }, "sync.batch_size"},
		{"zero attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }, "sync.max_attempts"},
		{"jitter above one", func(c *Config) { c.Sync.Jitter = 1.5 }, "sync.jitter"},
		{"jitter that could zero the delay", func(c *Config) { c.Sync.Jitter = 1 }, "sync.jitter"},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
		{"base above max", func(c *Config) { c.Sync.BackoffBase = time.Hour }, "exceeds sync.backoff_max"},
		{"zero dedupe size", func(c *Config) { c.Ingest.DedupeSize = 0 }, "ingest.dedupe_size"},
		{"zero dedupe ttl", func(c *Config) { c.Ingest.DedupeTTL = 0 }, "ingest.dedupe_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestWorkerConfig(t *testing.T) {
	cfg := Default()
	cfg.User.ID = "alice"
	cfg.Sync.BatchSize = 7
	cfg.Sync.Jitter = 0.1

	wc := cfg.WorkerConfig()
	if wc.FromUser != "alice" {
		t.Errorf("FromUser = %q, want alice", wc.FromUser)
	}
	if wc.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7", wc.BatchSize)
	}
	if wc.Backoff.Base != syncer.DefaultBackoffBase || wc.Backoff.Max != syncer.DefaultBackoffMax {
		t.Errorf("Backoff = %+v", wc.Backoff)
	}
	if wc.Backoff.Jitter != 0.1 {
		t.Errorf("Backoff.Jitter = %v, want 0.1", wc.Backoff.Jitter)
	}
}

func TestStoreOptions(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = store.DriverCGO
	cfg.Database.BusyTimeout = time.Second

	opts := cfg.StoreOptions()
	if opts.Driver != store.DriverCGO || opts.BusyTimeout != time.Second {
		t.Errorf("StoreOptions() = %+v", opts)
	}
}
