package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client (vendor calls)
	HTTPTimeout time.Duration

	// Credential service
	CredServiceURL   string
	CredServiceToken string
	// CredMasterKey must be 32 bytes when the credential service is used.
	CredMasterKey  string
	UseCredService bool

	// Resilience (credential service client)
	MaxRetries     int
	InitialBackoff time.Duration

	// Failover
	AttemptTimeout     time.Duration
	SearchDeadline     time.Duration
	AggregateMaxFanout int

	// Circuit breaker
	FailureThreshold int
	CircuitCooldown  time.Duration
	LatencyWindow    int

	// Health probing
	ProbeInterval       time.Duration
	ProbeTimeout        time.Duration
	ProbeMaxConcurrency int

	// Cache
	AirportCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Admin auth
	AdminJWTSecret string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		CredServiceURL:   getEnv("CRED_SERVICE_URL", ""),
		CredServiceToken: getEnv("CRED_SERVICE_TOKEN", ""),
		CredMasterKey:    getEnv("CRED_MASTER_KEY", ""),
		UseCredService:   getEnv("USE_CRED_SERVICE", "true") == "true",

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),

		AttemptTimeout:     getEnvDuration("ATTEMPT_TIMEOUT", 5*time.Second),
		SearchDeadline:     getEnvDuration("SEARCH_DEADLINE", 15*time.Second),
		AggregateMaxFanout: getEnvInt("AGGREGATE_MAX_FANOUT", 3),

		FailureThreshold: getEnvInt("CIRCUIT_FAILURE_THRESHOLD", 5),
		CircuitCooldown:  getEnvDuration("CIRCUIT_COOLDOWN", 60*time.Second),
		LatencyWindow:    getEnvInt("LATENCY_WINDOW", 100),

		ProbeInterval:       getEnvDuration("PROBE_INTERVAL", 30*time.Second),
		ProbeTimeout:        getEnvDuration("PROBE_TIMEOUT", 3*time.Second),
		ProbeMaxConcurrency: getEnvInt("PROBE_MAX_CONCURRENCY", 4),

		AirportCacheTTL: getEnvDuration("AIRPORT_CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
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
