// Package config loads specrepo settings from a YAML file with environment
// overrides.
//
// Precedence, lowest first: Default values, the YAML file, SPECREPO_*
// environment variables. Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rshade/specrepo/internal/cache"
	"github.com/rshade/specrepo/internal/logging"
	"github.com/rshade/specrepo/internal/paging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPECREPO_"

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendJSONFile = "jsonfile"
	BackendSQLite   = "sqlite"
)

// Backends lists every supported backend.
var Backends = []string{BackendMemory, BackendJSONFile, BackendSQLite} //nolint:gochecknoglobals // read-only list

// Validation errors.
var (
	ErrUnknownBackend   = errors.New("unknown storage backend")
	ErrMissingStorePath = errors.New("store path is required for this backend")
	ErrInvalidFormat    = errors.New("unknown log format")
	ErrInvalidPageSize  = errors.New("invalid page size")
)

// Config is the full specrepo configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"   envPrefix:"STORE_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
	Query   QueryConfig   `yaml:"query"   envPrefix:"QUERY_"`
}

// StoreConfig selects and locates the storage backend.
type StoreConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"`
	// Path is the snapshot file for jsonfile and the database file for sqlite.
	Path  string `yaml:"path"  env:"PATH"`
	Table string `yaml:"table" env:"TABLE"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file"   env:"FILE"`
	Caller bool   `yaml:"caller" env:"CALLER"`
}

// QueryConfig bounds paging and enables the count cache.
type QueryConfig struct {
	DefaultPageSize int `yaml:"default_page_size" env:"DEFAULT_PAGE_SIZE"`
	MaxPageSize     int `yaml:"max_page_size"     env:"MAX_PAGE_SIZE"`
	// CountCacheTTL of zero disables count caching.
	CountCacheTTL time.Duration `yaml:"count_cache_ttl" env:"COUNT_CACHE_TTL"`
	Metrics       bool          `yaml:"metrics"         env:"METRICS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendMemory,
			Table:   "documents",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Query: QueryConfig{
			DefaultPageSize: paging.DefaultPageSize,
			MaxPageSize:     paging.MaxPageSize,
		},
	}
}

// DefaultPath returns ~/.specrepo/config.yaml, or "" when the home directory
// is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".specrepo", "config.yaml")
}

// Load builds a Config from path and the environment. An empty path skips
// the file. A missing file is an error only when required is true.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !required:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Store.Backend) {
		return fmt.Errorf("%w: %q (want one of %v)", ErrUnknownBackend, c.Store.Backend, Backends)
	}
	if c.Store.Backend != BackendMemory && c.Store.Path == "" {
		return fmt.Errorf("%w: %s", ErrMissingStorePath, c.Store.Backend)
	}

	if c.Logging.Format != logging.FormatConsole && c.Logging.Format != logging.FormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Logging.Format)
	}

	q := c.Query
	if q.MaxPageSize < paging.MinPageSize || q.MaxPageSize > paging.MaxPageSize {
		return fmt.Errorf("%w: max_page_size must be between %d and %d, got %d",
			ErrInvalidPageSize, paging.MinPageSize, paging.MaxPageSize, q.MaxPageSize)
	}
	if q.DefaultPageSize < paging.MinPageSize || q.DefaultPageSize > q.MaxPageSize {
		return fmt.Errorf("%w: default_page_size must be between %d and %d, got %d",
			ErrInvalidPageSize, paging.MinPageSize, q.MaxPageSize, q.DefaultPageSize)
	}
	if q.CountCacheTTL != 0 {
		if err := cache.ValidateTTL(q.CountCacheTTL); err != nil {
			return fmt.Errorf("count_cache_ttl: %w", err)
		}
	}
	return nil
}

// ToLoggingConfig converts the logging section.
func (c *Config) ToLoggingConfig() logging.Config {
	return logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		File:   c.Logging.File,
		Caller: c.Logging.Caller,
	}
}

// Save writes c as YAML to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
