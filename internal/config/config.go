package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tokenmeter/tokenmeter/internal/util"
	"gopkg.in/yaml.v3"
)

// defaultConfigFile is the config file name used when no path is given.
const defaultConfigFile = "config.yaml"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Admin    AdminConfig    `yaml:"admin"`
	Redis    RedisConfig    `yaml:"redis"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, e.g. ":8317".
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // SQLite path or PostgreSQL DSN.
}

// JWTConfig holds admin token settings.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpiryHours int    `yaml:"expiry-hours"`
}

// Expiry returns the configured token lifetime.
func (c JWTConfig) Expiry() time.Duration {
	hours := c.ExpiryHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// AdminConfig holds the bootstrap administrator credentials.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig holds optional cache settings. An empty Addr disables caching.
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	CacheTTLSeconds int    `yaml:"cache-ttl-seconds"`
}

// CacheTTL returns the configured catalog cache TTL.
func (c RedisConfig) CacheTTL() time.Duration {
	seconds := c.CacheTTLSeconds
	if seconds <= 0 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

// PricingConfig holds settings for the upstream auto-pricing source.
type PricingConfig struct {
	BaseURL        string `yaml:"base-url"`
	APIKey         string `yaml:"api-key"`
	TimeoutSeconds int    `yaml:"timeout-seconds"`
}

// Timeout returns the configured fetch timeout.
func (c PricingConfig) Timeout() time.Duration {
	seconds := c.TimeoutSeconds
	if seconds <= 0 {
		seconds = 10
	}
	return time.Duration(seconds) * time.Second
}

// LoggingConfig holds log output settings. An empty File logs to stderr.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// ResolveConfigPath resolves the config file path, honoring WRITABLE_PATH
// when the given path is empty or relative.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = defaultConfigFile
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	if base := util.WritablePath(); base != "" {
		return filepath.Join(base, trimmed)
	}
	return trimmed
}

// Load reads and parses the YAML config file at path.
func Load(path string) (Config, error) {
	var cfg Config
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	applyDefaults(&cfg)
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return cfg, fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return cfg, fmt.Errorf("config: jwt.secret is required")
	}
	return cfg, nil
}

// applyDefaults fills unset fields with sane defaults.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8317"
	}
	if strings.TrimSpace(cfg.Pricing.BaseURL) == "" {
		cfg.Pricing.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Admin.Username) == "" {
		cfg.Admin.Username = "admin"
	}
}
