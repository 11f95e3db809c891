// Package config handles configuration loading for homebase.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Every field has a default, so a file only needs the values it
// changes; an absent file means Default().
//
// # Configuration File
//
// The CLI resolves the path in this order:
//
//  1. --config flag
//  2. HOMEBASE_CONFIG environment variable
//  3. ./homebase.yaml (current directory)
//  4. ~/.config/homebase/config.yaml
//
// Files ending in .toml are decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	user:
//	  id: "${HOMEBASE_USER}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  interval: "5s"
//	  backoff_max: "5m"
//
// # Configuration Sections
//
//	database:
//	  path: "homebase.db"
//	  driver: "sqlite"      # sqlite (pure Go) or sqlite3 (cgo)
//	  busy_timeout: "5s"
//
//	logging:
//	  level: "info"         # debug, info, warn, error
//	  format: "text"        # text, json
//
//	sync:
//	  batch_size: 25
//	  interval: "5s"
//	  attempt_timeout: "15s"
//	  max_attempts: 8
//	  backoff_base: "2s"
//	  backoff_max: "5m"
//	  jitter: 0.2           # 0 to 0.5
//
//	ingest:
//	  dedupe_ttl: "5m"
//	  dedupe_size: 10000
//
//	user:
//	  id: "alice"
//
// The sync section configures the delivery worker. The CLI has no network
// transport of its own; an application embedding homebase builds the worker
// with hub.NewWorker(transport, cfg.WorkerConfig()).
//
// # Usage
//
//	cfg, err := config.Load("homebase.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
