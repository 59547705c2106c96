package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the client settings. Values from the YAML file can be
// overridden with SCRUMDECK_* environment variables.
type Config struct {
	ServerURL string `yaml:"server_url"`
	UserName  string `yaml:"user_name"`
	Emoji     string `yaml:"emoji"`
	DeckID    string `yaml:"deck_id"`
}

func defaultConfig() Config {
	return Config{
		ServerURL: "ws://localhost:3001/ws",
		UserName:  "anonymous",
		Emoji:     "🂡",
		DeckID:    "fibonacci",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.ServerURL = getEnv("SCRUMDECK_SERVER_URL", cfg.ServerURL)
	cfg.UserName = getEnv("SCRUMDECK_USER_NAME", cfg.UserName)
	cfg.Emoji = getEnv("SCRUMDECK_EMOJI", cfg.Emoji)
	cfg.DeckID = getEnv("SCRUMDECK_DECK", cfg.DeckID)
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
