package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrNoConfig    = errors.New("config file not found")
	ErrNoAPIToken  = errors.New("api_token not set in config")
	ErrInvalidJSON = errors.New("invalid config JSON")
)

// Config holds the global appdraft configuration.
type Config struct {
	APIToken       string `json:"api_token"`
	BaseURL        string `json:"base_url"`
	DefaultProject string `json:"default_project"` // Project ID used when a request doesn't name one
}

// Load reads the config from ~/.config/appdraft/config.json, after applying
// a .env file (if present in the working directory) so APPDRAFT_* variables
// can override file values.
func Load() (*Config, error) {
	// Missing .env is the normal case; only explicit variables matter.
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(homeDir, ".config", "appdraft", "config.json")
	return LoadFrom(configPath)
}

// LoadFrom reads the config from a specific path. Environment variables
// (APPDRAFT_API_TOKEN, APPDRAFT_BASE_URL, APPDRAFT_PROJECT) override file
// values, and the config file is optional when the token comes from the
// environment.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, ErrInvalidJSON
		}
	case os.IsNotExist(err):
		if os.Getenv("APPDRAFT_API_TOKEN") == "" {
			return nil, ErrNoConfig
		}
	default:
		return nil, err
	}

	applyEnvOverrides(&cfg)

	if cfg.APIToken == "" {
		return nil, ErrNoAPIToken
	}

	// Set defaults
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.appdraft.dev/v1"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APPDRAFT_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("APPDRAFT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("APPDRAFT_PROJECT"); v != "" {
		cfg.DefaultProject = v
	}
}
