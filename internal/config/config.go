// ABOUTME: Configuration loading and parsing for memex
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
)

// Defaults applied to fields the config file leaves empty
const (
	DefaultDriver           = "sqlite"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultSummarizeTimeout = 30 * time.Second
	DefaultTitleLength      = 60
	DefaultSnippetLength    = 240
	DefaultDedupeTTL        = 10 * time.Minute
	DefaultDedupeMaxSize    = 10000
	DefaultBufferSize       = 64
)

// Config represents the complete memex configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database" toml:"database"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Summarizer    SummarizerConfig    `yaml:"summarizer" toml:"summarizer"`
	Dedupe        DedupeConfig        `yaml:"dedupe" toml:"dedupe"`
	Notifications NotificationsConfig `yaml:"notifications" toml:"notifications"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo)
	Driver string `yaml:"driver" toml:"driver"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text or json
}

// SummarizerConfig controls how conversations are summarized on close
type SummarizerConfig struct {
	Timeout       time.Duration `yaml:"-" toml:"-"`
	TitleLength   int           `yaml:"title_length" toml:"title_length"`
	SnippetLength int           `yaml:"snippet_length" toml:"snippet_length"`

	// Raw string values for unmarshaling
	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// DedupeConfig sizes the idempotent-send cache
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-" toml:"-"`
	MaxSize int           `yaml:"max_size" toml:"max_size"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// NotificationsConfig holds event broadcaster configuration
type NotificationsConfig struct {
	BufferSize int `yaml:"buffer_size" toml:"buffer_size"`
}

// Default returns a configuration with every default applied and the
// database stored at dbPath.
func Default(dbPath string) *Config {
	cfg := &Config{Database: DatabaseConfig{Path: dbPath}}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

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

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DefaultDriver
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Summarizer.Timeout == 0 {
		cfg.Summarizer.Timeout = DefaultSummarizeTimeout
	}
	if cfg.Summarizer.TitleLength == 0 {
		cfg.Summarizer.TitleLength = DefaultTitleLength
	}
	if cfg.Summarizer.SnippetLength == 0 {
		cfg.Summarizer.SnippetLength = DefaultSnippetLength
	}
	if cfg.Dedupe.TTL == 0 {
		cfg.Dedupe.TTL = DefaultDedupeTTL
	}
	if cfg.Dedupe.MaxSize == 0 {
		cfg.Dedupe.MaxSize = DefaultDedupeMaxSize
	}
	if cfg.Notifications.BufferSize == 0 {
		cfg.Notifications.BufferSize = DefaultBufferSize
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Summarizer.Timeout < 0 {
		return fmt.Errorf("summarizer.timeout must not be negative")
	}
	if c.Summarizer.TitleLength < 0 || c.Summarizer.SnippetLength < 0 {
		return fmt.Errorf("summarizer lengths must not be negative")
	}
	if c.Dedupe.TTL < 0 {
		return fmt.Errorf("dedupe.ttl must not be negative")
	}
	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}
	if c.Notifications.BufferSize < 0 {
		return fmt.Errorf("notifications.buffer_size must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Summarizer.TimeoutRaw != "" {
		cfg.Summarizer.Timeout, err = time.ParseDuration(cfg.Summarizer.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing summarizer.timeout %q: %w", cfg.Summarizer.TimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}

// ResolvePath returns the config file location.
// Priority: MEMEX_CONFIG env var > XDG_CONFIG_HOME/memex/config.yaml > ~/.config/memex/config.yaml
func ResolvePath() string {
	if envPath := os.Getenv("MEMEX_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "memex", "config.yaml")
}

// DataDir returns the directory holding the default database.
// Priority: XDG_DATA_HOME/memex > ~/.local/share/memex
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "memex")
}
