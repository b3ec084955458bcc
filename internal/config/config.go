// Package config loads cagkit settings from an optional YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cagkit configuration.
type Config struct {
	// Database is the SQLite file path. ":memory:" keeps nothing.
	Database string `yaml:"database"`

	Logging LoggingConfig `yaml:"logging"`
	Poll    PollConfig    `yaml:"poll"`
	Reindex ReindexConfig `yaml:"reindex"`
	Vector  VectorConfig  `yaml:"vector"`
	Extent  ExtentConfig  `yaml:"extent"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// PollConfig configures job polling.
type PollConfig struct {
	Interval  string `yaml:"interval"`
	Threshold int    `yaml:"threshold"`
}

// ReindexConfig configures the document reindexer.
type ReindexConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// VectorConfig configures concept suggestions.
type VectorConfig struct {
	Dim int `yaml:"dim"`
	K   int `yaml:"k"`
}

// ExtentConfig configures extent expansion.
type ExtentConfig struct {
	Levels int `yaml:"levels"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: "cagkit.db",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Poll: PollConfig{
			Interval:  "1s",
			Threshold: 50,
		},
		Reindex: ReindexConfig{BatchSize: 500},
		Vector:  VectorConfig{Dim: 256, K: 5},
		Extent:  ExtentConfig{Levels: 31},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings that cannot be used.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database path is empty")
	}
	if c.Poll.Interval != "" {
		if _, err := time.ParseDuration(c.Poll.Interval); err != nil {
			return fmt.Errorf("config: poll.interval: %w", err)
		}
	}
	if c.Reindex.BatchSize < 0 {
		return fmt.Errorf("config: reindex.batch_size must not be negative")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("CAGKIT_DATABASE"); path != "" {
		c.Database = path
	}
	if level := os.Getenv("CAGKIT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("CAGKIT_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}
