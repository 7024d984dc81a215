// Package config provides configuration loading and structs for the personae service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the person database and the full-text index store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
}

// IndexConfig holds index lock settings. Durations use time.ParseDuration syntax ("5s").
type IndexConfig struct {
	// WriteLockTimeout bounds how long a writer waits for the single-writer lock.
	WriteLockTimeout string `yaml:"write_lock_timeout"`
	// OpenTimeout bounds how long opening a generation waits for its on-disk lock.
	OpenTimeout string `yaml:"open_timeout"`
}

// WriteLockTimeoutDuration returns the parsed write lock timeout.
func (c *IndexConfig) WriteLockTimeoutDuration() time.Duration {
	return parseDurationOr(c.WriteLockTimeout, defaultWriteLockTimeout)
}

// OpenTimeoutDuration returns the parsed open timeout.
func (c *IndexConfig) OpenTimeoutDuration() time.Duration {
	return parseDurationOr(c.OpenTimeout, defaultOpenTimeout)
}

// SearchConfig holds query engine defaults.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// ExactUnbounded returns every exact match when no limit is requested; defaults to true when unset.
	ExactUnbounded *bool `yaml:"exact_unbounded"`
	// FuzzyPrefixLength is the number of leading runes fuzzy candidates share with the term;
	// defaults to 1 when unset, 0 disables it.
	FuzzyPrefixLength *int     `yaml:"fuzzy_prefix_length"`
	Fields            []string `yaml:"fields"`
}

// FuzzyPrefixLengthOrDefault returns the configured fuzzy prefix length.
func (s *SearchConfig) FuzzyPrefixLengthOrDefault() int {
	if s.FuzzyPrefixLength != nil {
		return *s.FuzzyPrefixLength
	}
	return defaultFuzzyPrefixLength
}

// ExactUnboundedOrDefault returns whether exact searches without a limit are unbounded.
func (s *SearchConfig) ExactUnboundedOrDefault() bool {
	if s.ExactUnbounded != nil {
		return *s.ExactUnbounded
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or a duration is malformed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)

	return &cfg, nil
}

// Validate checks values that ApplyDefaults cannot repair.
func Validate(cfg *Config) error {
	if _, err := time.ParseDuration(cfg.Index.WriteLockTimeout); err != nil {
		return fmt.Errorf("invalid index.write_lock_timeout %q: %w", cfg.Index.WriteLockTimeout, err)
	}
	if _, err := time.ParseDuration(cfg.Index.OpenTimeout); err != nil {
		return fmt.Errorf("invalid index.open_timeout %q: %w", cfg.Index.OpenTimeout, err)
	}
	if cfg.Search.DefaultLimit > cfg.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Search.FuzzyPrefixLength != nil && *cfg.Search.FuzzyPrefixLength < 0 {
		return fmt.Errorf("search.fuzzy_prefix_length must not be negative")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
