// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Budget   BudgetConfig   `yaml:"budget"`
	Database DatabaseConfig `yaml:"database"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DiscordConfig configures the Discord gateway connection.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"` // empty registers commands globally
}

// OpenAIConfig configures the chat completion provider.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url,omitempty"` // empty uses the public API
	Timeout time.Duration `yaml:"timeout"`
}

// BudgetConfig configures the daily token budget.
type BudgetConfig struct {
	DailyTokenLimit int64 `yaml:"daily_token_limit"`
}

// DatabaseConfig configures the ledger database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig configures the daily archive store.
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// AdminConfig configures the admin HTTP server.
type AdminConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // custom path (default: /metrics)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// This is useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	HIMAWARI_DISCORD_TOKEN      - Discord bot token (required)
//	HIMAWARI_DISCORD_GUILD_ID   - Guild for command registration (default: global)
//	HIMAWARI_OPENAI_API_KEY     - OpenAI API key (required)
//	HIMAWARI_OPENAI_BASE_URL    - Alternate API endpoint
//	HIMAWARI_DAILY_TOKEN_LIMIT  - Per-user daily token budget (default: 10000)
//	HIMAWARI_DATABASE_PATH      - Ledger database path (default: himawari.db)
//	HIMAWARI_ARCHIVE_DIR        - Daily archive directory (default: archive)
//	HIMAWARI_ADMIN_HOST         - Admin server host (default: 0.0.0.0)
//	HIMAWARI_ADMIN_PORT         - Admin server port (default: 8710)
//	HIMAWARI_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	HIMAWARI_LOG_FORMAT         - Log format: json or console (default: json)
//	HIMAWARI_METRICS_ENABLED    - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := Config{Metrics: MetricsConfig{Enabled: true}}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if os.Getenv("HIMAWARI_DISCORD_TOKEN") != "" {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set HIMAWARI_DISCORD_TOKEN")
}

// applyEnvOverrides applies HIMAWARI_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HIMAWARI_DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("HIMAWARI_DISCORD_GUILD_ID"); v != "" {
		cfg.Discord.GuildID = v
	}

	if v := os.Getenv("HIMAWARI_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("HIMAWARI_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("HIMAWARI_OPENAI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.OpenAI.Timeout = d
		}
	}

	if v := os.Getenv("HIMAWARI_DAILY_TOKEN_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Budget.DailyTokenLimit = n
		}
	}

	if v := os.Getenv("HIMAWARI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HIMAWARI_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}

	if v := os.Getenv("HIMAWARI_ADMIN_HOST"); v != "" {
		cfg.Admin.Host = v
	}
	if v := os.Getenv("HIMAWARI_ADMIN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Admin.Port = port
		}
	}

	if v := os.Getenv("HIMAWARI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HIMAWARI_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("HIMAWARI_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("HIMAWARI_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 60 * time.Second
	}

	if cfg.Budget.DailyTokenLimit == 0 {
		cfg.Budget.DailyTokenLimit = 10000
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "himawari.db"
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = "archive"
	}

	if cfg.Admin.Host == "" {
		cfg.Admin.Host = "0.0.0.0"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8710
	}
	if cfg.Admin.ReadTimeout == 0 {
		cfg.Admin.ReadTimeout = 30 * time.Second
	}
	if cfg.Admin.WriteTimeout == 0 {
		cfg.Admin.WriteTimeout = 60 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if cfg.Budget.DailyTokenLimit < 0 {
		return fmt.Errorf("budget.daily_token_limit must not be negative, got %d", cfg.Budget.DailyTokenLimit)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if cfg.Admin.Port < 0 || cfg.Admin.Port > 65535 {
		return fmt.Errorf("admin.port must be a valid port, got %d", cfg.Admin.Port)
	}

	return nil
}
