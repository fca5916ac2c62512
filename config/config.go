// Package config loads runtime settings from CATHAYS_* environment
// variables with defaults matching the original deployment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the overlay settings. All fields are read from the
// environment by Load; zero-config startup uses the defaults below.
type Config struct {
	// Topic is the topic manager name outputs are admitted under.
	Topic string `envconfig:"CATHAYS_TOPIC" default:"tm_cathays"`

	// Service is the lookup service name queries are routed by.
	Service string `envconfig:"CATHAYS_SERVICE" default:"ls_cathays"`

	// Network selects the chain, "main" or "test".
	Network string `envconfig:"CATHAYS_NETWORK" default:"main"`

	// DBPath is the bbolt database file. Parent directories are
	// created on open.
	DBPath string `envconfig:"CATHAYS_DB_PATH" default:"data/cathays.db"`

	// ProviderURL overrides the chain data API base URL. Empty means
	// WhatsOnChain for the configured network.
	ProviderURL string `envconfig:"CATHAYS_PROVIDER_URL"`

	// MaxQueryLimit caps the page size a lookup query may request.
	// Zero means uncapped.
	MaxQueryLimit int `envconfig:"CATHAYS_MAX_QUERY_LIMIT" default:"200"`

	// LogLevel is the zap level name: debug, info, warn or error.
	LogLevel string `envconfig:"CATHAYS_LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("cathays", cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var logLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Validate checks the configuration for values no component can run
// with. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Topic == "" {
		return ErrEmptyTopic
	}
	if c.Service == "" {
		return ErrEmptyService
	}
	if c.Network != "main" && c.Network != "test" {
		return fmt.Errorf("%w: %q", ErrInvalidNetwork, c.Network)
	}
	if c.DBPath == "" {
		return ErrEmptyDBPath
	}
	if c.MaxQueryLimit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, c.MaxQueryLimit)
	}
	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}
