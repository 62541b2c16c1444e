// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	BackendWSURL  string
	BackendAPIURL string
	DebugAddr     string
	JournalPath   string
	JournalTTL    time.Duration
	PlayerName    string
	Tom           TomConfig
	Reconnect     ReconnectConfig
}

// TomConfig controls the simulated support agent.
type TomConfig struct {
	TypingSimulation   bool
	TypingSpeedWPM     int
	NotificationSounds bool
}

// ReconnectConfig controls the WebSocket retry behaviour.
type ReconnectConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	wpm := getEnvInt("TOM_TYPING_SPEED_WPM", 80)
	if wpm <= 0 {
		wpm = 80
	}

	cfg := &Config{
		BackendWSURL:  getEnv("BACKEND_WS_URL", "ws://localhost:8000"),
		BackendAPIURL: getEnv("BACKEND_API_URL", "http://localhost:8000"),
		DebugAddr:     getEnv("DEBUG_ADDR", "127.0.0.1:8090"),
		JournalPath:   getEnv("JOURNAL_PATH", "./data/journal.db"),
		JournalTTL:    7 * 24 * time.Hour,
		PlayerName:    getEnv("PLAYER_NAME", ""),
		Tom: TomConfig{
			TypingSimulation:   getEnvBool("TOM_TYPING_SIMULATION", true),
			TypingSpeedWPM:     wpm,
			NotificationSounds: getEnvBool("NOTIFICATION_SOUNDS", true),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: getEnvInt("WS_MAX_RECONNECT_ATTEMPTS", 5),
			BaseDelay:   time.Duration(getEnvInt("WS_RECONNECT_BASE_DELAY_MS", 1000)) * time.Millisecond,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BackendWSURL == "" {
		return fmt.Errorf("BACKEND_WS_URL cannot be empty")
	}
	if !strings.HasPrefix(c.BackendWSURL, "ws://") && !strings.HasPrefix(c.BackendWSURL, "wss://") {
		return fmt.Errorf("BACKEND_WS_URL must be a ws:// or wss:// origin")
	}
	if c.BackendAPIURL == "" {
		return fmt.Errorf("BACKEND_API_URL cannot be empty")
	}
	if c.DebugAddr == "" {
		return fmt.Errorf("DEBUG_ADDR cannot be empty")
	}
	if c.JournalPath == "" {
		return fmt.Errorf("JOURNAL_PATH cannot be empty")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("WS_MAX_RECONNECT_ATTEMPTS must be > 0")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("WS_RECONNECT_BASE_DELAY_MS must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
