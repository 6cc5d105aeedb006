// Package config loads and validates the osfs CLI configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (OSFS_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config captures every configurable aspect of the osfs tool.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Walk holds the defaults for tree iteration
	Walk WalkConfig `mapstructure:"walk"`

	// Checkpoint configures the resumable-walk checkpoint store
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`

	// Handle configures file-handle resolution
	Handle HandleConfig `mapstructure:"handle"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// WalkConfig holds defaults for the walk subcommand.
type WalkConfig struct {
	// Mountpoint is the default filesystem mountpoint to walk
	Mountpoint string `mapstructure:"mountpoint"`

	// FilesystemName, when set, is verified against the superblock
	// source of the mount backing the walk root
	FilesystemName string `mapstructure:"filesystem_name"`

	// RelativePath moves the walk root below the mountpoint.
	// Must be relative and must not escape the mountpoint.
	RelativePath string `mapstructure:"relative_path"`

	// BtimeCutoff drops files created after this Unix timestamp.
	// Zero disables the filter.
	BtimeCutoff int64 `mapstructure:"btime_cutoff" validate:"gte=0"`

	// ReportingIncrement controls how often walk progress is reported
	// and checkpointed, in yielded entries
	ReportingIncrement uint64 `mapstructure:"reporting_increment"`
}

// CheckpointConfig configures the checkpoint store backing resumable
// walks.
type CheckpointConfig struct {
	// Dir is the BadgerDB directory holding walk checkpoints
	Dir string `mapstructure:"dir" validate:"required"`
}

// HandleConfig configures file-handle resolution.
type HandleConfig struct {
	// ResolverCacheSize bounds the mount-fd cache of the handle
	// resolver
	ResolverCacheSize int `mapstructure:"resolver_cache_size" validate:"gte=1"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath uses the default location
// ($XDG_CONFIG_HOME/osfs/config.yaml); a missing file there is fine and
// falls through to defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable and config file handling.
// Environment variables use the OSFS_ prefix with underscores, e.g.
// OSFS_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("OSFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is not an error; everything then comes from env and defaults.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path, preferring
// XDG_CONFIG_HOME, then ~/.config, then the working directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "osfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "osfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the configuration directory path (exposed for
// the init command).
func GetConfigDir() string {
	return getConfigDir()
}
