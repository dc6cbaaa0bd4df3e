package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DatabasePath string

	// Dispatcher
	AttemptTimeout time.Duration

	// Platform defaults
	BlueskyPDSURL string
	NostrRelays   []string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables, loading a .env file
// first if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:  getEnv("FRAGOUT_DB_PATH", "data/fragout.db"),
		BlueskyPDSURL: getEnv("FRAGOUT_BLUESKY_PDS_URL", "https://bsky.social"),
		NostrRelays:   splitList(getEnv("FRAGOUT_NOSTR_RELAYS", "wss://relay.damus.io,wss://nos.lol,wss://relay.nostr.band")),
		LogLevel:      getEnv("FRAGOUT_LOG_LEVEL", "info"),
	}

	var err error
	cfg.AttemptTimeout, err = time.ParseDuration(getEnv("FRAGOUT_ATTEMPT_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FRAGOUT_ATTEMPT_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("FRAGOUT_DB_PATH is required")
	}
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("FRAGOUT_ATTEMPT_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
