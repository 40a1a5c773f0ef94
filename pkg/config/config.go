package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration: where
// category databases live, how the daemon's HTTP gateway listens, and
// how the rest of the system logs and migrates data.
type Config struct {
	Profile   string          `mapstructure:"profile"`
	Database  DatabaseConfig  `mapstructure:"database"`
	RestAPI   RestAPIConfig   `mapstructure:"rest_api"`
	Migration MigrationConfig `mapstructure:"migration"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds the category-database storage location and
// backup policy.
type DatabaseConfig struct {
	CategoryDir    string        `mapstructure:"category_dir"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	MaxBackups     int           `mapstructure:"max_backups"`
}

// RestAPIConfig holds the daemon's HTTP gateway configuration.
// AutoPort enables automatic port selection when Port is taken.
type RestAPIConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AutoPort     bool     `mapstructure:"auto_port"`
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	CORS         bool     `mapstructure:"cors"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MigrationConfig holds defaults for the JSON-to-SQL migration
// pipeline.
type MigrationConfig struct {
	SourceDir      string `mapstructure:"source_dir"`
	ProgressTick   int    `mapstructure:"progress_tick"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

// DefaultConfig returns configuration with the engine's baseline
// defaults.
func DefaultConfig() *Config {
	configDir := ConfigPath()

	return &Config{
		Profile: "default",
		Database: DatabaseConfig{
			CategoryDir:    filepath.Join(configDir, "SkylineDB"),
			BackupInterval: 24 * time.Hour,
			MaxBackups:     7,
		},
		RestAPI: RestAPIConfig{
			Enabled:  true,
			AutoPort: true,
			Port:     8765,
			Host:     "localhost",
			CORS:     true,
		},
		Migration: MigrationConfig{
			SourceDir:    filepath.Join(configDir, "import"),
			ProgressTick: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from YAML file with fallback to defaults.
// Searches in multiple locations:
// 1. ./config.yaml (current directory)
// 2. ~/.sheetengine/config.yaml (user home)
// 3. /etc/sheetengine/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".sheetengine"))
	v.AddConfigPath("/etc/sheetengine")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values in Viper.
func setDefaults(v *viper.Viper) {
	configDir := ConfigPath()

	v.SetDefault("profile", "default")
	v.SetDefault("database.category_dir", filepath.Join(configDir, "SkylineDB"))
	v.SetDefault("database.backup_interval", "24h")
	v.SetDefault("database.max_backups", 7)

	v.SetDefault("rest_api.enabled", true)
	v.SetDefault("rest_api.auto_port", true)
	v.SetDefault("rest_api.port", 8765)
	v.SetDefault("rest_api.host", "localhost")
	v.SetDefault("rest_api.cors", true)

	v.SetDefault("migration.source_dir", filepath.Join(configDir, "import"))
	v.SetDefault("migration.progress_tick", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.CategoryDir == "" {
		return fmt.Errorf("database.category_dir is required")
	}
	if c.Database.MaxBackups < 0 {
		return fmt.Errorf("database.max_backups must be >= 0")
	}

	if c.RestAPI.Enabled {
		if c.RestAPI.Port < 1 || c.RestAPI.Port > 65535 {
			return fmt.Errorf("rest_api.port must be between 1 and 65535")
		}
		if c.RestAPI.Host == "" {
			return fmt.Errorf("rest_api.host is required when REST API is enabled")
		}
	}

	if c.Migration.ProgressTick <= 0 {
		return fmt.Errorf("migration.progress_tick must be > 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureConfigDir creates the category-database directory if it
// doesn't exist.
func (c *Config) EnsureConfigDir() error {
	if err := os.MkdirAll(c.Database.CategoryDir, 0755); err != nil {
		return fmt.Errorf("failed to create category directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sheetengine")
}

// DatabasePath returns the on-disk path of the named category
// database (`<category>.db` under the configured category directory).
func (c *Config) DatabasePath(category string) string {
	return filepath.Join(c.Database.CategoryDir, category+".db")
}
