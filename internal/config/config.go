// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Upload limits
	MaxUploadBytes int64 // Per-request body cap for CSV uploads
	RateLimitRPS   int

	// LLM explanation service
	LLMBaseURL string // OpenAI-compatible API base (empty disables the LLM path)
	LLMAPIKey  string
	LLMModel   string

	// Liveness verification
	LivenessProviderURL string // External liveness provider (empty enables demo mode)
	LivenessAPIKey      string
	SanctionsAPIURL     string // Sanctions screening endpoint (optional)

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (empty disables tracing)
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultRateLimit      = 100
	DefaultMaxUploadBytes = 25 << 20 // 25 MiB
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		LLMBaseURL:          os.Getenv("LLM_BASE_URL"),
		LLMAPIKey:           os.Getenv("LLM_API_KEY"),
		LLMModel:            getEnv("LLM_MODEL", DefaultLLMModel),
		LivenessProviderURL: os.Getenv("LIVENESS_PROVIDER_URL"),
		LivenessAPIKey:      os.Getenv("LIVENESS_API_KEY"),
		SanctionsAPIURL:     os.Getenv("SANCTIONS_API_URL"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %d", c.RateLimitRPS)
	}
	if c.LLMBaseURL != "" && c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when LLM_BASE_URL is set")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LivenessDemoMode reports whether liveness checks run against the built-in
// deterministic verifier instead of an external provider.
func (c *Config) LivenessDemoMode() bool {
	return c.LivenessProviderURL == ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
