package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL     string
	CloreAPIBaseURL string
	Port            string
	Environment     string

	// Exchange rates used to normalize prices into USD
	CloreToUSD float64
	BTCToUSD   float64

	// Watcher intervals
	BalanceCheckInterval time.Duration
	ServerCheckInterval  time.Duration
	HuntCheckInterval    time.Duration

	// Minimum spacing between outbound Clore API calls
	RequestSpacing time.Duration

	// How long a found server stays suppressed before it can alert again
	HuntDedupTTL time.Duration
}

func Load() *Config {
	// Default MySQL connection string
	defaultDSN := "root:clore@tcp(127.0.0.1:3306)/clore_watch?charset=utf8mb4&parseTime=True&loc=Local"

	return &Config{
		DatabaseURL:     getEnv("DATABASE_URL", defaultDSN),
		CloreAPIBaseURL: getEnv("CLORE_API_BASE_URL", "https://api.clore.ai/v1"),
		Port:            getEnv("PORT", "8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),

		CloreToUSD: getEnvFloat("CLORE_TO_USD", 0.02),
		BTCToUSD:   getEnvFloat("BTC_TO_USD", 100000.0),

		BalanceCheckInterval: getEnvDuration("BALANCE_CHECK_INTERVAL", 600*time.Second),
		ServerCheckInterval:  getEnvDuration("SERVER_CHECK_INTERVAL", 300*time.Second),
		HuntCheckInterval:    getEnvDuration("HUNT_CHECK_INTERVAL", 30*time.Second),

		RequestSpacing: getEnvDuration("CLORE_REQUEST_SPACING", 1100*time.Millisecond),
		HuntDedupTTL:   getEnvDuration("HUNT_DEDUP_TTL", time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Plain integers are treated as seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
