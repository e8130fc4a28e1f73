package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func Config(key string) string {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	return os.Getenv(key)
}

func ConfigInt(key string, fallback int) int {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: %s is not a valid integer (%q), using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func ConfigDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	minutes := Config(key)
	if minutes == "" {
		return fallback
	}
	value, err := strconv.Atoi(minutes)
	if err != nil {
		log.Printf("Warning: %s is not a valid integer (%q), using default %s", key, minutes, fallback)
		return fallback
	}
	return time.Duration(value) * unit
}
