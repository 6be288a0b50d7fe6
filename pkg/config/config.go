package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DatabaseURL      string
	BubbleAPIKey     string
	BubbleBaseURL    string
	UpstreamTimeout  time.Duration
	HourlySyncEnable bool
	SyncInterval     time.Duration
	SyncBatchSize    int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	timeout := 30 * time.Second
	if t := os.Getenv("UPSTREAM_TIMEOUT"); t != "" {
		if parsed, err := time.ParseDuration(t); err == nil {
			timeout = parsed
		}
	}

	interval := 1 * time.Hour
	if t := os.Getenv("SYNC_INTERVAL"); t != "" {
		if parsed, err := time.ParseDuration(t); err == nil {
			interval = parsed
		}
	}

	batchSize := 200
	if b := os.Getenv("SYNC_BATCH_SIZE"); b != "" {
		if parsed, err := strconv.Atoi(b); err == nil && parsed > 0 {
			batchSize = parsed
		}
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		BubbleAPIKey:     getEnv("BUBBLE_API_KEY_LIVE", ""),
		BubbleBaseURL:    getEnv("BUBBLE_BASE_URL", "https://assignmentassistants.theinstituteslab.org/api/1.1/obj"),
		UpstreamTimeout:  timeout,
		HourlySyncEnable: getEnv("ENABLE_HOURLY_SYNC", "true") == "true",
		SyncInterval:     interval,
		SyncBatchSize:    batchSize,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
