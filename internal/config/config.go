// Package config loads the client configuration from TOML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the client settings.
type Config struct {
	URL         string `toml:"url"`
	Token       string `toml:"token"`
	PingSeconds int    `toml:"ping_seconds"`
	LogLevel    string `toml:"log_level"`
}

// Load reads and validates the configuration at path, applying
// defaults for unset fields.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PingSeconds == 0 {
		c.PingSeconds = 60
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("url must use ws or wss scheme: %s", c.URL)
	}
	if c.PingSeconds < 0 {
		return fmt.Errorf("ping_seconds must be positive: %d", c.PingSeconds)
	}
	return nil
}

// PingInterval returns the keepalive interval as a duration.
func (c Config) PingInterval() time.Duration {
	return time.Duration(c.PingSeconds) * time.Second
}
