// Package config provides YAML-based configuration loading for the bridge.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bridge configuration, loaded from config.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// BridgeConfig holds core relay settings.
type BridgeConfig struct {
	// Platform selects the external channel: "slack" (default) or "discord".
	Platform string `yaml:"platform"`
	// GatewayTimeoutSec bounds every external channel call.
	GatewayTimeoutSec int          `yaml:"gateway_timeout_sec"`
	Digest            DigestConfig `yaml:"digest"`
}

// DigestConfig controls the periodic unresolved-thread summary.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // 5-field cron expression
}

// SlackConfig holds Slack credentials and the target channel.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord credentials and the target channel.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Database == "" {
		c.Database.Database = "chatbridge"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Bridge.Platform == "" {
		c.Bridge.Platform = "slack"
	}
	if c.Bridge.GatewayTimeoutSec == 0 {
		c.Bridge.GatewayTimeoutSec = 10
	}
	if c.Bridge.Digest.Enabled && c.Bridge.Digest.Cron == "" {
		c.Bridge.Digest.Cron = "0 9 * * 1-5"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Bridge.Platform {
	case "slack":
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required for platform slack")
		}
		if c.Slack.ChannelID == "" {
			errs = append(errs, "slack.channel_id is required for platform slack")
		}
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required for platform discord")
		}
		if c.Discord.ChannelID == "" {
			errs = append(errs, "discord.channel_id is required for platform discord")
		}
	default:
		errs = append(errs, fmt.Sprintf("bridge.platform must be slack or discord, got %q", c.Bridge.Platform))
	}
	if c.Bridge.GatewayTimeoutSec < 0 {
		errs = append(errs, "bridge.gateway_timeout_sec must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
