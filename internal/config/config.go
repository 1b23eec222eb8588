package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config contains all runtime settings for the assistant service.
type Config struct {
	Port            string
	ShutdownTimeout time.Duration

	// conversation cache
	CacheType            string // memory | redis | postgres
	CacheMaxEntries      int    // memory backend capacity (conversations)
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	RedisMaxMemory       string
	RedisMaxMemoryPolicy string
	PostgresURL          string
	PostgresMaxEntries   int

	// LLM provider
	LLMBaseURL   string
	LLMAPIKey    string
	DefaultModel string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:            envOrDefault("PORT", "8080"),
		ShutdownTimeout: 10 * time.Second,

		CacheType:            envOrDefault("CACHE_TYPE", "memory"),
		RedisAddr:            envOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisMaxMemory:       envOrDefault("REDIS_MAX_MEMORY", "100mb"),
		RedisMaxMemoryPolicy: envOrDefault("REDIS_MAX_MEMORY_POLICY", "allkeys-lru"),
		PostgresURL:          os.Getenv("POSTGRES_URL"),

		LLMBaseURL:   envOrDefault("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		DefaultModel: envOrDefault("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
	}

	var err error
	cfg.CacheMaxEntries, err = intFromEnv("CACHE_MAX_ENTRIES", 1000)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisDB, err = intFromEnv("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.PostgresMaxEntries, err = intFromEnv("POSTGRES_MAX_ENTRIES", 1000)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
