// Package config loads service configuration from an optional YAML file with
// environment-variable overrides. Secrets come from the environment only.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for metacat.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // set at load time via ldflags

	Database  DatabaseConfig  `yaml:"database"`
	Connector ConnectorConfig `yaml:"connector"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// CredentialsKey encrypts datasource passwords at rest.
	// Base64-encoded 32-byte key (openssl rand -base64 32) or any passphrase.
	// The server refuses to start without it.
	CredentialsKey string `yaml:"-" env:"CATALOG_CREDENTIALS_KEY"`
}

// DatabaseConfig holds the catalog's own PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"metacat"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"metacat"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// URL renders the pgx connection string.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// ConnectorConfig bounds outbound connections to external datasources.
type ConnectorConfig struct {
	// TimeoutSeconds caps each connect/query against a datasource.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"CONNECTOR_TIMEOUT_SECONDS" env-default:"30"`
}

// Timeout returns the connector timeout as a duration.
func (c *ConnectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SchedulerConfig tunes the extraction task driver.
type SchedulerConfig struct {
	// TickSeconds is the due-task scan granularity. Capped at 60.
	TickSeconds int `yaml:"tick_seconds" env:"SCHEDULER_TICK_SECONDS" env-default:"30"`
	// MaxConcurrentExtractions bounds parallel extraction workers.
	MaxConcurrentExtractions int `yaml:"max_concurrent_extractions" env:"SCHEDULER_MAX_CONCURRENT" env-default:"4"`
	// Timezone is the fixed reference location for cron evaluation.
	Timezone string `yaml:"timezone" env:"SCHEDULER_TIMEZONE" env-default:"UTC"`
}

// Tick returns the scan interval, capped at one minute.
func (c *SchedulerConfig) Tick() time.Duration {
	secs := c.TickSeconds
	if secs <= 0 || secs > 60 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// Location resolves the configured cron timezone.
func (c *SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load reads config.yaml (if present) then applies environment overrides.
func Load(version string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	cfg.Version = version

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CATALOG_CREDENTIALS_KEY must be set")
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}

	return &cfg, nil
}
