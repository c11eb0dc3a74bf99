package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_WithValidConfig(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "LLM_BASE_URL", "")
	setEnv(t, "LLM_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultLLMModel, cfg.LLMModel)
	assert.Equal(t, int64(DefaultMaxUploadBytes), cfg.MaxUploadBytes)
	assert.True(t, cfg.LivenessDemoMode())
}

func TestLoad_LLMKeyRequiredWithBaseURL(t *testing.T) {
	setEnv(t, "PORT", "8080")
	setEnv(t, "LLM_BASE_URL", "https://api.openai.com/v1")
	setEnv(t, "LLM_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY is required")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Port:           "8080",
		MaxUploadBytes: DefaultMaxUploadBytes,
		RateLimitRPS:   DefaultRateLimit,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "non-numeric port",
			mutate:  func(c *Config) { c.Port = "eighty" },
			wantErr: "PORT must be numeric",
		},
		{
			name:    "zero upload cap",
			mutate:  func(c *Config) { c.MaxUploadBytes = 0 },
			wantErr: "MAX_UPLOAD_BYTES must be positive",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimitRPS = 0 },
			wantErr: "RATE_LIMIT_RPS must be positive",
		},
		{
			name:    "llm url without key",
			mutate:  func(c *Config) { c.LLMBaseURL = "https://llm.example.com" },
			wantErr: "LLM_API_KEY is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestConfig_LivenessDemoMode(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.LivenessDemoMode())

	cfg.LivenessProviderURL = "https://liveness.example.com"
	assert.False(t, cfg.LivenessDemoMode())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99)) // Falls back on parse error
}
