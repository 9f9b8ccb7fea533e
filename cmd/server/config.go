// Package main provides the DMARCWatch alert server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Notifiers NotifiersConfig `yaml:"notifiers"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Seed      SeedConfig      `yaml:"seed"`
	Verbose   bool            `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address        string `yaml:"address"`           // HTTP listen address (default: :8080)
	MetricsAddress string `yaml:"metrics_address"`   // Dedicated metrics port, empty = API /metrics only
	RateLimitPerIP int    `yaml:"rate_limit_per_ip"` // Requests per minute per client IP
	QueryTimeout   string `yaml:"query_timeout"`     // Timeout for storage-backed API calls
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database file path
}

// NotifiersConfig configures the notification channels. A channel with a
// zero-value config is not registered.
type NotifiersConfig struct {
	Teams   TeamsConfig   `yaml:"teams"`
	Email   EmailConfig   `yaml:"email"`
	Slack   SlackConfig   `yaml:"slack"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// TeamsConfig contains Microsoft Teams webhook settings.
type TeamsConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// EmailConfig contains SMTP settings.
type EmailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// SlackConfig contains Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig contains generic webhook settings.
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// DispatchConfig tunes the notification fanout.
type DispatchConfig struct {
	ChannelTimeout   string `yaml:"channel_timeout"`    // Per-channel send timeout (default: 5s)
	RateLimitEnabled *bool  `yaml:"rate_limit_enabled"` // Notification rate limit (default: true)
	RateLimitPerMin  int    `yaml:"rate_limit_per_min"` // Notifications per minute (default: 10)
}

// SeedConfig points at the YAML rule/suppression seed file.
type SeedConfig struct {
	Path  string `yaml:"path"`  // Seed file path, empty = no seeding
	Watch bool   `yaml:"watch"` // Re-seed when the file changes
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.RateLimitPerIP == 0 {
		c.Server.RateLimitPerIP = 120
	}
	if c.Server.QueryTimeout == "" {
		c.Server.QueryTimeout = "10s"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/dmarcwatch.db"
	}
	if c.Dispatch.ChannelTimeout == "" {
		c.Dispatch.ChannelTimeout = "5s"
	}
	if c.Dispatch.RateLimitPerMin == 0 {
		c.Dispatch.RateLimitPerMin = 10
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := time.ParseDuration(c.Server.QueryTimeout); err != nil {
		return fmt.Errorf("server.query_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Dispatch.ChannelTimeout); err != nil {
		return fmt.Errorf("dispatch.channel_timeout: %w", err)
	}
	if c.Notifiers.Email.Host != "" {
		if c.Notifiers.Email.Port == 0 {
			return fmt.Errorf("notifiers.email.port is required when email is configured")
		}
		if c.Notifiers.Email.From == "" {
			return fmt.Errorf("notifiers.email.from is required when email is configured")
		}
		if len(c.Notifiers.Email.Recipients) == 0 {
			return fmt.Errorf("notifiers.email.recipients is required when email is configured")
		}
	}
	if c.Seed.Watch && c.Seed.Path == "" {
		return fmt.Errorf("seed.path is required when seed.watch is enabled")
	}
	return nil
}

// queryTimeout returns the parsed query timeout. Validate has already
// checked the string.
func (c *Config) queryTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.QueryTimeout)
	return d
}

// channelTimeout returns the parsed per-channel dispatch timeout.
func (c *Config) channelTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Dispatch.ChannelTimeout)
	return d
}

// rateLimitEnabled defaults to true when unset.
func (c *Config) rateLimitEnabled() bool {
	if c.Dispatch.RateLimitEnabled == nil {
		return true
	}
	return *c.Dispatch.RateLimitEnabled
}
