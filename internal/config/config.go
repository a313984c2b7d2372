// Package config provides YAML-based configuration loading for mhai.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Poll modes.
const (
	PollModeSince = "since"
	PollModeFull  = "full"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Alert platforms.
const (
	PlatformSlack   = "slack"
	PlatformDiscord = "discord"
)

// Config is the top-level mhai configuration, loaded from mhai.yaml.
type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
	Alerts AlertsConfig `yaml:"alerts"`
}

// ClientConfig holds settings for the chat and diary terminal clients.
type ClientConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Username          string        `yaml:"username"`
	PendingTimeoutSec int           `yaml:"pending_timeout_sec"`
	RequestTimeoutSec int           `yaml:"request_timeout_sec"`
	Chat              SurfaceConfig `yaml:"chat"`
	Diary             SurfaceConfig `yaml:"diary"`
}

// SurfaceConfig tunes polling for one conversation surface.
type SurfaceConfig struct {
	PollIntervalMs int    `yaml:"poll_interval_ms"`
	PollMode       string `yaml:"poll_mode"`
}

// PollInterval returns the configured interval as a duration.
func (s SurfaceConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// PendingTimeout returns how long a sent message may wait for its response.
func (c ClientConfig) PendingTimeout() time.Duration {
	return time.Duration(c.PendingTimeoutSec) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout.
func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ServerConfig holds settings for the reference backend.
type ServerConfig struct {
	Port            int            `yaml:"port"`
	SessionTTLHours int            `yaml:"session_ttl_hours"`
	Database        DatabaseConfig `yaml:"database"`
	Answer          AnswerConfig   `yaml:"answer"`
}

// DatabaseConfig selects and configures the backend store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// AnswerConfig controls how the backend produces responses.
type AnswerConfig struct {
	DelayMs       int    `yaml:"delay_ms"`
	Workers       int    `yaml:"workers"`
	StaleAfterSec int    `yaml:"stale_after_sec"`
	SweepCron     string `yaml:"sweep_cron"`
}

// AlertsConfig routes operator alerts to a chat platform.
type AlertsConfig struct {
	Platform string        `yaml:"platform"`
	Channel  string        `yaml:"channel"`
	Slack    SlackConfig   `yaml:"slack"`
	Discord  DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
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

// Default returns a Config with every default applied, used when no config
// file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = "http://127.0.0.1:8000"
	}
	c.Client.BaseURL = strings.TrimRight(c.Client.BaseURL, "/")
	if c.Client.PendingTimeoutSec == 0 {
		c.Client.PendingTimeoutSec = 120
	}
	if c.Client.RequestTimeoutSec == 0 {
		c.Client.RequestTimeoutSec = 30
	}
	if c.Client.Chat.PollIntervalMs == 0 {
		c.Client.Chat.PollIntervalMs = 5000
	}
	if c.Client.Diary.PollIntervalMs == 0 {
		c.Client.Diary.PollIntervalMs = 1000
	}
	if c.Client.Chat.PollMode == "" {
		c.Client.Chat.PollMode = PollModeSince
	}
	if c.Client.Diary.PollMode == "" {
		c.Client.Diary.PollMode = PollModeSince
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.SessionTTLHours == 0 {
		c.Server.SessionTTLHours = 24 * 14
	}
	db := &c.Server.Database
	if db.Driver == "" {
		db.Driver = DriverSQLite
	}
	if db.Driver == DriverSQLite && db.Path == "" {
		db.Path = "mhai.db"
	}
	if db.Driver == DriverMySQL {
		if db.Host == "" {
			db.Host = "127.0.0.1"
		}
		if db.Port == 0 {
			db.Port = 3306
		}
		if db.User == "" {
			db.User = "root"
		}
		if db.Name == "" {
			db.Name = "mhai"
		}
	}
	ans := &c.Server.Answer
	if ans.DelayMs == 0 {
		ans.DelayMs = 1500
	}
	if ans.Workers == 0 {
		ans.Workers = 4
	}
	if ans.StaleAfterSec == 0 {
		ans.StaleAfterSec = 300
	}
	if ans.SweepCron == "" {
		ans.SweepCron = "* * * * *"
	}
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if !strings.HasPrefix(c.Client.BaseURL, "http://") && !strings.HasPrefix(c.Client.BaseURL, "https://") {
		errs = append(errs, "client.base_url must start with http:// or https://")
	}
	surfaces := []struct {
		name string
		cfg  SurfaceConfig
	}{{"chat", c.Client.Chat}, {"diary", c.Client.Diary}}
	for _, s := range surfaces {
		if s.cfg.PollIntervalMs < 0 {
			errs = append(errs, fmt.Sprintf("client.%s.poll_interval_ms must be positive", s.name))
		}
		if s.cfg.PollMode != PollModeSince && s.cfg.PollMode != PollModeFull {
			errs = append(errs, fmt.Sprintf("client.%s.poll_mode %q is not one of since, full", s.name, s.cfg.PollMode))
		}
	}
	if c.Client.PendingTimeoutSec < 0 {
		errs = append(errs, "client.pending_timeout_sec must be positive")
	}

	switch c.Server.Database.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		errs = append(errs, fmt.Sprintf("server.database.driver %q is not one of sqlite, mysql", c.Server.Database.Driver))
	}
	if c.Server.Answer.Workers < 0 {
		errs = append(errs, "server.answer.workers must be positive")
	}
	if _, err := cron.ParseStandard(c.Server.Answer.SweepCron); err != nil {
		errs = append(errs, fmt.Sprintf("server.answer.sweep_cron: %v", err))
	}

	switch c.Alerts.Platform {
	case "":
	case PlatformSlack:
		if c.Alerts.Slack.BotToken == "" {
			errs = append(errs, "alerts.slack.bot_token is required for platform slack")
		}
		if c.Alerts.Channel == "" {
			errs = append(errs, "alerts.channel is required")
		}
	case PlatformDiscord:
		if c.Alerts.Discord.BotToken == "" {
			errs = append(errs, "alerts.discord.bot_token is required for platform discord")
		}
		if c.Alerts.Channel == "" {
			errs = append(errs, "alerts.channel is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("alerts.platform %q is not one of slack, discord", c.Alerts.Platform))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
