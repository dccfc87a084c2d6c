// Package config handles configuration loading for memex.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Files ending in .toml are decoded as TOML; everything else is
// YAML. Missing values fall back to defaults and the result is validated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from MEMEX_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/memex/config.yaml
//  3. ~/.config/memex/config.yaml
//
// When no file exists the CLI runs with Default and a database under DataDir.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${MEMEX_DB}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	summarizer:
//	  timeout: "30s"
//	dedupe:
//	  ttl: "10m"
//
// # Configuration Sections
//
//	database:
//	  path: "~/.local/share/memex/memex.db"
//	  driver: "sqlite"      # sqlite (pure Go) or sqlite3 (cgo)
//
//	logging:
//	  level: "info"         # debug, info, warn, error
//	  format: "text"        # text, json
//
//	summarizer:
//	  timeout: "30s"        # bound on each summarization
//	  title_length: 60
//	  snippet_length: 240
//
//	dedupe:
//	  ttl: "10m"            # how long client message ids are remembered
//	  max_size: 10000
//
//	notifications:
//	  buffer_size: 64       # per-subscriber event buffer
//
// The same layout in TOML:
//
//	[database]
//	path = "/var/lib/memex/memex.db"
//
//	[summarizer]
//	timeout = "30s"
package config
