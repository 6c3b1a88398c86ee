package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Equal(t, "gemini", cfg.OCREngine)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, 30*time.Second, cfg.OCRTimeout)
	assert.Equal(t, 3, cfg.OCRConcurrency)
	assert.Equal(t, 3, cfg.OCRMaxAttempts)
	assert.Equal(t, int64(10485760), cfg.MaxUploadSize)
	assert.Equal(t, "memory", cfg.SessionStore)
	assert.Equal(t, time.Hour, cfg.SessionRetention)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("OCR_ENGINE", "tesseract")
	t.Setenv("OCR_CONCURRENCY", "5")
	t.Setenv("OCR_TIMEOUT_MS", "45000")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("SESSION_RETENTION_MS", "120000")
	t.Setenv("MAX_UPLOAD_SIZE", "2048")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "tesseract", cfg.OCREngine)
	assert.Equal(t, 5, cfg.OCRConcurrency)
	assert.Equal(t, 45*time.Second, cfg.OCRTimeout)
	assert.Equal(t, "redis", cfg.SessionStore)
	assert.Equal(t, 2*time.Minute, cfg.SessionRetention)
	assert.Equal(t, int64(2048), cfg.MaxUploadSize)
}

func TestLoadConfigInvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.Port = 0 }},
		{"port too high", func(c *Config) { c.Port = 70000 }},
		{"unknown engine", func(c *Config) { c.OCREngine = "azure" }},
		{"unknown store", func(c *Config) { c.SessionStore = "dynamo" }},
		{"postgres without url", func(c *Config) { c.SessionStore = "postgres"; c.DatabaseURL = "" }},
		{"zero concurrency", func(c *Config) { c.OCRConcurrency = 0 }},
		{"too many attempts", func(c *Config) { c.OCRMaxAttempts = 11 }},
		{"upload size too small", func(c *Config) { c.MaxUploadSize = 100 }},
		{"timeout too short", func(c *Config) { c.OCRTimeout = 500 * time.Millisecond }},
		{"retention too short", func(c *Config) { c.SessionRetention = 30 * time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
