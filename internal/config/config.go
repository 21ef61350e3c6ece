// Package config loads xdump configuration from an optional YAML file with
// environment-variable overrides. Environment wins over file, file wins over
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend names selectable via configuration.
const (
	BackendAPI     = "api"
	BackendBrowser = "browser"
)

// Config holds all xdump settings.
type Config struct {
	// Backend selects the fetch strategy: "api" (session-cookie GraphQL
	// replay) or "browser" (interception via a real browser).
	Backend string `yaml:"backend"`

	// StorePath is the tweet store database file.
	StorePath string `yaml:"store_path"`

	// AccountsDB is the api backend's account pool database file.
	AccountsDB string `yaml:"accounts_db"`

	// ChromeProfile is the persistent browser profile directory, so the
	// logged-in session survives across runs.
	ChromeProfile string `yaml:"chrome_profile"`

	// Headless runs the browser without a window. Defaults to false:
	// headed sessions draw less anti-automation attention.
	Headless bool `yaml:"headless"`

	// Proxy is an optional proxy URL for both backends.
	Proxy string `yaml:"proxy"`
}

// Default returns the built-in configuration rooted under ~/.xdump.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".xdump")
	return Config{
		Backend:       BackendBrowser,
		StorePath:     filepath.Join(base, "tweets.db"),
		AccountsDB:    filepath.Join(base, "accounts.db"),
		ChromeProfile: filepath.Join(base, "chrome-profile"),
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// ~/.xdump/config.yaml when present, then XDUMP_* environment overrides.
func Load() (Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".xdump", "config.yaml")
		if _, statErr := os.Stat(path); statErr == nil {
			if err := loadFile(path, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)

	if cfg.Backend != BackendAPI && cfg.Backend != BackendBrowser {
		return cfg, fmt.Errorf("unknown backend %q: use %q or %q", cfg.Backend, BackendAPI, BackendBrowser)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("XDUMP_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("XDUMP_STORE"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("XDUMP_ACCOUNTS_DB"); v != "" {
		cfg.AccountsDB = v
	}
	if v := os.Getenv("XDUMP_CHROME_PROFILE"); v != "" {
		cfg.ChromeProfile = v
	}
	if v := os.Getenv("XDUMP_HEADLESS"); v != "" {
		cfg.Headless = v == "1" || v == "true"
	}
	if v := os.Getenv("XDUMP_PROXY"); v != "" {
		cfg.Proxy = v
	}
}
