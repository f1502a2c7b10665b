package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds all inference harness configuration
type Config struct {
	// Fixtures
	ModelPath string `mapstructure:"model"`
	StepsPath string `mapstructure:"steps"`

	// Inference settings
	Seed          int64 `mapstructure:"seed"`
	Deterministic bool  `mapstructure:"deterministic"`

	// Run management
	MaxSteps      int           `mapstructure:"max_steps"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	StoreSize     uint64        `mapstructure:"store_size"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Seed:          0,
		MaxSteps:      -1, // unlimited
		Timeout:       5 * time.Minute,
		BatchSize:     32,
		FlushInterval: 5 * time.Second,
		StoreSize:     10000,
		LogLevel:      "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("flush_interval must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q is not a valid level", c.LogLevel)
	}
	return nil
}

// RequireModel checks that a model manifest was given.
func (c *Config) RequireModel() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// RequireSteps checks that recorded steps were given.
func (c *Config) RequireSteps() error {
	if c.StepsPath == "" {
		return fmt.Errorf("steps is required")
	}
	return nil
}
