// Package config loads and validates the riskscan configuration from a
// YAML file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redforge/riskscan/internal/api"
	"github.com/redforge/riskscan/internal/identity"
	"github.com/redforge/riskscan/internal/logging"
	"github.com/redforge/riskscan/internal/store"
	"github.com/redforge/riskscan/internal/workers"
)

// envPrefix prefixes all override variables, e.g. RISKSCAN_STORE_PASSWORD.
const envPrefix = "RISKSCAN_"

// Config is the complete service configuration.
type Config struct {
	Server   api.Config     `yaml:"server" json:"server"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`
	Workers  workers.Config `yaml:"workers" json:"workers"`
	Identity IdentityConfig `yaml:"identity" json:"identity"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver   string               `yaml:"driver" json:"driver"`
	Postgres store.PostgresConfig `yaml:"postgres" json:"postgres"`
}

// ScanningConfig holds scanner invocation settings.
type ScanningConfig struct {
	// Binary is the nmap-compatible scanner executable.
	Binary string `yaml:"binary" json:"binary"`

	// DefaultProfile applies when a scan request names none.
	DefaultProfile string `yaml:"default_profile" json:"default_profile"`

	// DNSTimeout bounds each lookup during target validation.
	DNSTimeout time.Duration `yaml:"dns_timeout" json:"dns_timeout"`
}

// IdentityConfig configures request authentication.
type IdentityConfig struct {
	APIKeys []identity.APIKeyEntry `yaml:"api_keys" json:"api_keys"`
	JWT     identity.JWTConfig     `yaml:"jwt" json:"jwt"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Format    string `yaml:"format" json:"format"`
	Output    string `yaml:"output" json:"output"`
	AddSource bool   `yaml:"add_source" json:"add_source"`
}

// ScheduleConfig toggles the recurring scan runtime.
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// MetricsConfig toggles Prometheus collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// SystemInterval is the period for process-level gauge updates.
	SystemInterval time.Duration `yaml:"system_interval" json:"system_interval"`
}

// Default returns a configuration with production defaults.
func Default() *Config {
	return &Config{
		Server: api.DefaultConfig(),
		Store: StoreConfig{
			Driver: "memory",
			Postgres: store.PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "riskscan",
				Username:        "riskscan",
				SSLMode:         "prefer",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Scanning: ScanningConfig{
			Binary:         "nmap",
			DefaultProfile: "quick",
			DNSTimeout:     5 * time.Second,
		},
		Workers: workers.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Schedule: ScheduleConfig{Enabled: true},
		Metrics: MetricsConfig{
			Enabled:        true,
			SystemInterval: 15 * time.Second,
		},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. A missing file is not an error; overrides still apply.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// applyEnv overlays RISKSCAN_* environment variables onto the loaded
// values. Only settings that are unsafe or awkward to commit to a file
// get overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv(envPrefix + "SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv(envPrefix + "STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv(envPrefix + "STORE_HOST"); v != "" {
		c.Store.Postgres.Host = v
	}
	if v := os.Getenv(envPrefix + "STORE_PASSWORD"); v != "" {
		c.Store.Postgres.Password = v
	}
	if v := os.Getenv(envPrefix + "SCANNER_BINARY"); v != "" {
		c.Scanning.Binary = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "JWT_JWKS_URL"); v != "" {
		c.Identity.JWT.JWKSURL = v
	}
}

// Validate checks the configuration for contradictions before startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Store.Postgres.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if c.Store.Postgres.Username == "" {
			return fmt.Errorf("postgres username is required")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Scanning.Binary == "" {
		return fmt.Errorf("scanner binary is required")
	}
	if c.Workers.Size <= 0 {
		return fmt.Errorf("worker pool size must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// LoggingOptions converts the logging section to the logger's config.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:     logging.LogLevel(c.Logging.Level),
		Format:    logging.LogFormat(c.Logging.Format),
		Output:    c.Logging.Output,
		AddSource: c.Logging.AddSource,
	}
}
