package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	// Slot cache
	CacheBackend      string
	CacheTTL          time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool
	SlotComputeBudget time.Duration

	// Scheduling defaults
	DefaultHorizonDays int

	// Precompute
	UseMemoryQueue      bool
	WorkerCount         int
	PrecomputeDaysAhead int
	PrecomputeInterval  time.Duration
	PrecomputeTimezones []string
	PrecomputeQueueURL  string
	PrecomputeJobsTable string
	PrecomputeJobTTL    time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// HTTP edge
	OrganizerJWTSecret string
	CORSAllowedOrigins []string
	CORSMaxAge         time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		CacheBackend:      strings.ToLower(strings.TrimSpace(getEnv("SLOT_CACHE_BACKEND", "memory"))),
		CacheTTL:          getEnvAsDuration("SLOT_CACHE_TTL", 6*time.Hour),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
		SlotComputeBudget: getEnvAsDuration("SLOT_COMPUTE_BUDGET", 300*time.Millisecond),

		DefaultHorizonDays: getEnvAsInt("DEFAULT_HORIZON_DAYS", 60),

		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),
		PrecomputeDaysAhead: getEnvAsInt("PRECOMPUTE_DAYS_AHEAD", 14),
		PrecomputeInterval:  getEnvAsDuration("PRECOMPUTE_INTERVAL", 15*time.Minute),
		PrecomputeTimezones: getEnvAsList("PRECOMPUTE_TIMEZONES", []string{"UTC"}),
		PrecomputeQueueURL:  getEnv("PRECOMPUTE_QUEUE_URL", ""),
		PrecomputeJobsTable: getEnv("PRECOMPUTE_JOBS_TABLE", ""),
		PrecomputeJobTTL:    getEnvAsDuration("PRECOMPUTE_JOB_TTL", 24*time.Hour),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		OrganizerJWTSecret: getEnv("ORGANIZER_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		CORSMaxAge:         getEnvAsDuration("CORS_MAX_AGE", 10*time.Minute),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 40),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
