// Package config provides configuration for the chat service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the chat service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Assistant backend
	BackendURL     string
	BackendTimeout time.Duration

	// Conversation settings
	SendMinInterval time.Duration
	HistoryLimit    int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:     getEnv("DATABASE_URL", "file:chatd.db?cache=shared&mode=rwc"),
		BackendURL:      getEnv("BACKEND_URL", "http://localhost:8090"),
		BackendTimeout:  time.Duration(getEnvInt("BACKEND_TIMEOUT_MS", 300000)) * time.Millisecond,
		SendMinInterval: time.Duration(getEnvInt("SEND_MIN_INTERVAL_MS", 1000)) * time.Millisecond,
		HistoryLimit:    getEnvInt("HISTORY_LIMIT", 50),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
