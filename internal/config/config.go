// Package config loads the read-once, environment-derived configuration
// the rest of the process is constructed from.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Config mirrors the APP_-prefixed environment contract the process reads
// its tunables from.
type Config struct {
	DefaultProcessorURL  string
	FallbackProcessorURL string
	RedisURL             string
	ServerKeepAlive      time.Duration

	WorkerCount         int
	MaxAttempts         int
	HealthProbeInterval time.Duration
	DrainTimeout        time.Duration
	LogLevel            string
	ListenAddr          string
}

// Load reads configuration from the environment. It fails fast (returns an
// error, never a zero-value fallback) for the two processor URLs and the
// store URL, since the process cannot do useful work without them.
func Load() (*Config, error) {
	cfg := &Config{
		WorkerCount:         getIntEnv("APP_WORKER_COUNT", 2*runtime.GOMAXPROCS(0)),
		MaxAttempts:         getIntEnv("APP_MAX_ATTEMPTS", 10),
		HealthProbeInterval: getDurationEnv("APP_HEALTH_PROBE_INTERVAL", 5*time.Second),
		DrainTimeout:        getDurationEnv("APP_DRAIN_TIMEOUT", 5*time.Second),
		LogLevel:            getEnv("APP_LOG_LEVEL", "info"),
		ListenAddr:          getEnv("APP_LISTEN_ADDR", ":9999"),
	}

	cfg.ServerKeepAlive = getDurationSecondsEnv("APP_SERVER_KEEPALIVE", 60*time.Second)

	var missing []string
	cfg.DefaultProcessorURL = requireEnv("APP_DEFAULT_PAYMENT_PROCESSOR_URL", &missing)
	cfg.FallbackProcessorURL = requireEnv("APP_FALLBACK_PAYMENT_PROCESSOR_URL", &missing)
	cfg.RedisURL = requireEnv("APP_REDIS_URL", &missing)
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func requireEnv(key string, missing *[]string) string {
	v := os.Getenv(key)
	if v == "" {
		*missing = append(*missing, key)
	}
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getDurationSecondsEnv parses a bare integer as seconds (APP_SERVER_KEEPALIVE
// is a seconds count, not a Go duration literal).
func getDurationSecondsEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
