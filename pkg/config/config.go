// Package config handles reading voicechat.yaml for the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for voicechat.yaml.
type Config struct {
	// BaseURL is the backend base URL (scheme + host).
	BaseURL string `yaml:"base_url"`

	// APIKey is the backend bearer token, if the deployment requires one.
	APIKey string `yaml:"api_key"`

	// Mode is the default conversation mode id.
	Mode string `yaml:"mode"`

	// WebSocketURL, when set, switches the fallback websocket transport on
	// and dials this realtime endpoint instead of negotiating WebRTC.
	WebSocketURL string `yaml:"websocket_url"`
}

const configFile = "voicechat.yaml"

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL: "http://localhost:8000",
		Mode:    "devils-advocate",
	}
}

// Load reads configuration with the usual precedence: built-in defaults,
// then the config file (explicit path, else ./voicechat.yaml, else
// ~/.config/voicechat/voicechat.yaml), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	file, explicit := resolvePath(path)
	if file != "" {
		data, err := os.ReadFile(file)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", file, err)
			}
		case explicit:
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func resolvePath(path string) (file string, explicit bool) {
	if path != "" {
		return path, true
	}
	if _, err := os.Stat(configFile); err == nil {
		return configFile, false
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, ".config", "voicechat", configFile), false
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VOICECHAT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("VOICECHAT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("VOICECHAT_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("VOICECHAT_WS_URL"); v != "" {
		cfg.WebSocketURL = v
	}
}
