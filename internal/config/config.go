// Package config loads llmr settings from the embedded defaults, the user's
// config.toml, a .env file and the environment, in increasing precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables read by Resolve*.
const (
	EnvAPIKey    = "ANTHROPIC_API_KEY"
	EnvModel     = "ANTHROPIC_MODEL"
	EnvConfigDir = "LLMR_CONFIG_DIR"
)

//go:embed default_config.toml
var defaultConfigTOML string

// Config represents the user's llmr configuration.
type Config struct {
	APIKey       string        `toml:"api_key"`
	Model        string        `toml:"model"`
	BaseURL      string        `toml:"base_url"`
	MaxTokens    int           `toml:"max_tokens"`
	Temperature  float64       `toml:"temperature"`
	Timeout      time.Duration `toml:"timeout"`
	Concurrency  int           `toml:"concurrency"`
	HistoryLimit int           `toml:"history_limit"`
	// HistoryFile overrides the default history location when set.
	HistoryFile string `toml:"history_file"`
}

// ConfigDir returns the config directory path.
// Resolution order: $LLMR_CONFIG_DIR > $XDG_CONFIG_HOME/llmr > ~/.config/llmr
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "llmr")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "llmr-config")
	}
	return filepath.Join(home, ".config", "llmr")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DefaultTOML returns the embedded default configuration file.
func DefaultTOML() string {
	return defaultConfigTOML
}

// DefaultConfig returns the default configuration from the embedded default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		panic("llmr: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// Load reads the config file at path on top of the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
	}
	return cfg, nil
}

// LoadConfig loads config from ConfigPath.
func LoadConfig() (*Config, error) {
	return Load(ConfigPath())
}

// LoadEnv loads a .env file from the working directory, if one exists.
// Variables already set in the environment are left alone.
func LoadEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ResolveAPIKey returns the API key.
// Priority: $ANTHROPIC_API_KEY env > config value.
func ResolveAPIKey(cfg *Config) string {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.APIKey
	}
	return ""
}

// ResolveModel returns the model name.
// Priority: $ANTHROPIC_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv(EnvModel); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Model
	}
	return ""
}

// Validate checks configuration for potential issues and returns warnings.
func Validate(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}
	if ResolveAPIKey(cfg) == "" {
		warnings = append(warnings, "no API key configured; set "+EnvAPIKey+" or api_key in "+ConfigPath())
	}
	if cfg.Concurrency < 1 {
		warnings = append(warnings, fmt.Sprintf("concurrency %d is less than 1; requests will run sequentially", cfg.Concurrency))
	}
	if cfg.Timeout < 0 {
		warnings = append(warnings, "timeout is negative; no timeout will be applied")
	}
	if cfg.HistoryLimit < 0 {
		warnings = append(warnings, "history_limit is negative; history will not be recorded")
	}
	return warnings
}
