// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the resolved service configuration.
type Config struct {
	Port            string
	DBDriver        string
	DatabaseURL     string
	DBPath          string
	DBDebug         bool
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Load resolves configuration. An empty path looks for todo.yaml in the
// working directory and silently falls back to defaults when it is absent;
// an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("db_driver", DriverSQLite)
	v.SetDefault("database_url", "")
	v.SetDefault("db_path", "todo.db")
	v.SetDefault("db_debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("shutdown_timeout", 30*time.Second)

	// Environment variables use the bare upper-case key: PORT, DB_DRIVER, ...
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("todo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Port:            v.GetString("port"),
		DBDriver:        v.GetString("db_driver"),
		DatabaseURL:     v.GetString("database_url"),
		DBPath:          v.GetString("db_path"),
		DBDebug:         v.GetBool("db_debug"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("db_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown db_driver %q (want %s or %s)", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	return nil
}
