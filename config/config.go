/*
Package config loads application configuration.

PURPOSE:
  Central configuration for the parts engine server. Values come from an
  optional YAML file, overridden by environment variables with the PARTS_
  prefix (PARTS_SERVER_ADDRESS, PARTS_DATABASE_PATH, ...), with sensible
  defaults so the server runs out of the box.

SEE ALSO:
  - cmd/server/main.go: the only consumer
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. The struct nesting mirrors the
// dotted key hierarchy: viper decodes AllSettings() as a nested map, so each
// dotted segment needs its own struct with an un-dotted tag.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Database    DatabaseConfig `mapstructure:"database"`
	Audit       AuditConfig    `mapstructure:"audit"`
	Sync        SyncConfig     `mapstructure:"sync"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address     string        `mapstructure:"address"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CorsEnabled bool          `mapstructure:"cors_enabled"`
	CorsOrigins []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuditConfig controls the background drift auditor.
type AuditConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// SyncConfig controls the inspection authorisation sync dispatcher.
type SyncConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

// Load reads configuration from an optional config file in path, then
// applies environment variable overrides.
func Load(path string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AddConfigPath(path)
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine: ENV vars and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PARTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	return config, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("server.timeout", "30s")
	v.SetDefault("server.cors_enabled", true)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.path", "./data/parts.db")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.interval", "10m")

	v.SetDefault("sync.queue_size", 128)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
