package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Ledger store
	Backend        string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	DatabaseURL    string

	// Compare-and-swap
	CASMaxAttempts int
	StoreTimeout   time.Duration

	// Notifications
	WebhookURL             string
	NotifierTimeout        time.Duration
	NotifierMaxConcurrency int

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience (webhook)
	MaxRetries     int
	InitialBackoff time.Duration

	// Idempotency replay window
	IdempotencyTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Auth
	JWTSecret       string
	OperatorKeyHash string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Backend:        strings.ToLower(getEnv("LEDGER_BACKEND", BackendMemory)),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "ledger:profile:"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		CASMaxAttempts: getEnvInt("LEDGER_CAS_MAX_ATTEMPTS", 3),
		StoreTimeout:   getEnvDuration("LEDGER_STORE_TIMEOUT", 5*time.Second),

		WebhookURL:             getEnv("NOTIFIER_WEBHOOK_URL", ""),
		NotifierTimeout:        getEnvDuration("NOTIFIER_TIMEOUT", 5*time.Second),
		NotifierMaxConcurrency: getEnvInt("NOTIFIER_MAX_CONCURRENCY", 32),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		IdempotencyTTL: getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		JWTSecret:       getEnv("JWT_SECRET", "ledger-default-dev-secret-change-me"),
		OperatorKeyHash: getEnv("OPERATOR_KEY_HASH", ""),
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the %s backend", c.Backend)
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_BACKEND %q", c.Backend)
	}
	if c.CASMaxAttempts < 1 {
		return fmt.Errorf("config: LEDGER_CAS_MAX_ATTEMPTS must be at least 1, got %d", c.CASMaxAttempts)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("config: LEDGER_STORE_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
