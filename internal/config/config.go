package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	APIToken    string

	PollInterval      time.Duration
	DispatchLimit     int
	OutboxMaxAttempts int
	ReconWindowDays   int

	PaymentsBaseURL string
	PaymentsAPIKey  string
	CalendarBaseURL string
	CalendarAPIKey  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	apiToken := getEnv("API_TOKEN", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if apiToken == "" {
		return nil, fmt.Errorf("API_TOKEN is required")
	}

	return &Config{
		Port:        port,
		DatabaseURL: dbURL,
		RedisURL:    redisURL,
		APIToken:    apiToken,

		PollInterval:      getEnvDuration("POLL_INTERVAL", 5*time.Second),
		DispatchLimit:     getEnvInt("DISPATCH_LIMIT", 10),
		OutboxMaxAttempts: getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),
		ReconWindowDays:   getEnvInt("RECON_WINDOW_DAYS", 14),

		PaymentsBaseURL: getEnv("PAYMENTS_BASE_URL", "https://api.payments.example.com"),
		PaymentsAPIKey:  getEnv("PAYMENTS_API_KEY", ""),
		CalendarBaseURL: getEnv("CALENDAR_BASE_URL", "https://api.calendar.example.com"),
		CalendarAPIKey:  getEnv("CALENDAR_API_KEY", ""),
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
