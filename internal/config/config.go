// internal/config/config.go
package config

import (
	"os"
	"strconv"
)

// Config holds the process configuration, read once at startup from the
// environment (godotenv loads a .env file first when present).
type Config struct {
	Port             string
	RedisAddr        string
	RedisDB          int
	DistractorAPIURL string

	// CountdownSeconds is the number of pre-game countdown ticks.
	CountdownSeconds int
	// ResultsSeconds is the fixed results-display window between rounds.
	ResultsSeconds int
}

// Load reads the configuration from environment variables, applying
// defaults for anything unset.
func Load() Config {
	return Config{
		Port:             getEnv("PORT", "8080"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		DistractorAPIURL: getEnv("DISTRACTOR_API_URL", "http://localhost:9090/generate"),
		CountdownSeconds: getEnvInt("COUNTDOWN_SECONDS", 3),
		ResultsSeconds:   getEnvInt("RESULTS_SECONDS", 5),
	}
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as an integer, else a default.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
