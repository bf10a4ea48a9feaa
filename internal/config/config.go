// SPDX-License-Identifier: MPL-2.0

// Package config loads the tool configuration.
//
// Configuration comes from a TOML file in the platform config directory,
// overridable per key through VSIX_-prefixed environment variables. Every
// key has a default, so a missing config file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/gabros20/vsix-extension-manager-sub001/pkg/platform"
)

const (
	// AppName is the application name, used for the config directory.
	AppName = "vsix"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "toml"
	// EnvPrefix is the prefix of configuration environment variables.
	EnvPrefix = "VSIX"
)

// configFilePathOverride lets the --config flag point at a custom file.
var configFilePathOverride string

// SetConfigFilePathOverride sets a custom config file path for the next
// Load call.
func SetConfigFilePathOverride(path string) {
	configFilePathOverride = path
}

// Config is the resolved tool configuration.
type Config struct {
	// InstallDir overrides the discovered extensions directory when set.
	InstallDir string `mapstructure:"install_dir" toml:"install_dir"`
	// Editor names the editor binary to discover ("code", "codium", ...).
	// Empty means: first supported editor found on PATH.
	Editor string `mapstructure:"editor" toml:"editor"`
	// Parallelism bounds concurrent install tasks.
	Parallelism int `mapstructure:"parallelism" toml:"parallelism"`
	// MaxRetries bounds retries per install task.
	MaxRetries int `mapstructure:"max_retries" toml:"max_retries"`
	// RetryDelayMs is the base retry backoff in milliseconds.
	RetryDelayMs int `mapstructure:"retry_delay_ms" toml:"retry_delay_ms"`
	// BatchSize bounds how many tasks one batch holds.
	BatchSize int `mapstructure:"batch_size" toml:"batch_size"`
	// SkipInstalled skips archives whose id is already registered at the
	// same version.
	SkipInstalled bool `mapstructure:"skip_installed" toml:"skip_installed"`
	// Verbose enables debug logging.
	Verbose bool `mapstructure:"verbose" toml:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Parallelism:   3,
		MaxRetries:    2,
		RetryDelayMs:  500,
		BatchSize:     10,
		SkipInstalled: true,
	}
}

// RetryDelay returns the base retry backoff as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// ConfigDir returns the vsix configuration directory using platform
// conventions: %APPDATA% on Windows, ~/Library/Application Support on
// macOS, $XDG_CONFIG_HOME (default ~/.config) elsewhere.
func ConfigDir() (string, error) {
	var configDir string
	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case platform.Darwin:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(configDir, AppName), nil
}

// Load resolves the configuration from defaults, the config file (if any)
// and environment variables. A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	defaults := Default()
	v.SetDefault("install_dir", defaults.InstallDir)
	v.SetDefault("editor", defaults.Editor)
	v.SetDefault("parallelism", defaults.Parallelism)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("retry_delay_ms", defaults.RetryDelayMs)
	v.SetDefault("batch_size", defaults.BatchSize)
	v.SetDefault("skip_installed", defaults.SkipInstalled)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if configFilePathOverride != "" {
		v.SetConfigFile(configFilePathOverride)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(ConfigFileName)
		v.SetConfigType(ConfigFileExt)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the built-in configuration as a TOML file at path,
// creating parent directories as needed. It refuses to overwrite an
// existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	defaults := Default()
	data, err := toml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// DefaultConfigFilePath returns the standard config file location.
func DefaultConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}
