/**
 * Configuration for the web-ocr server
 *
 * Loads configuration from environment variables (optionally via .env).
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds server configuration
type Config struct {
	// HTTP server
	Port       int
	CORSOrigin string

	// Vision backend
	GeminiAPIKey string
	GeminiModel  string
	OCREngine    string // "gemini" or "tesseract"

	// Per-region OCR call budget (bounds total retry time, see internal/retry)
	OCRTimeout     time.Duration
	OCRConcurrency int
	OCRMaxAttempts int

	// Upload handling
	MaxUploadSize int64
	UploadDir     string

	// Session store
	SessionStore     string // "memory", "redis" or "postgres"
	RedisURL         string
	DatabaseURL      string
	SessionRetention time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnvAsIntOrDefault("PORT", 3000),
		CORSOrigin:       getEnvOrDefault("CORS_ORIGIN", "*"),
		GeminiAPIKey:     getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:      getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		OCREngine:        getEnvOrDefault("OCR_ENGINE", "gemini"),
		OCRTimeout:       getEnvAsMillisOrDefault("OCR_TIMEOUT_MS", 30000),
		OCRConcurrency:   getEnvAsIntOrDefault("OCR_CONCURRENCY", 3),
		OCRMaxAttempts:   getEnvAsIntOrDefault("OCR_MAX_ATTEMPTS", 3),
		MaxUploadSize:    getEnvAsInt64OrDefault("MAX_UPLOAD_SIZE", 10485760), // 10MB
		UploadDir:        getEnvOrDefault("UPLOAD_DIR", "./uploads"),
		SessionStore:     getEnvOrDefault("SESSION_STORE", "memory"),
		RedisURL:         getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:      getEnvOrDefault("DATABASE_URL", ""),
		SessionRetention: getEnvAsMillisOrDefault("SESSION_RETENTION_MS", 3600000), // 1 hour
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "console"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.OCREngine {
	case "gemini", "tesseract":
	default:
		return fmt.Errorf("OCR_ENGINE must be \"gemini\" or \"tesseract\", got %q", c.OCREngine)
	}

	switch c.SessionStore {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("SESSION_STORE must be \"memory\", \"redis\" or \"postgres\", got %q", c.SessionStore)
	}

	if c.SessionStore == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when SESSION_STORE=postgres")
	}

	if c.OCRConcurrency < 1 || c.OCRConcurrency > 50 {
		return fmt.Errorf("OCR_CONCURRENCY must be between 1 and 50, got %d", c.OCRConcurrency)
	}

	if c.OCRMaxAttempts < 1 || c.OCRMaxAttempts > 10 {
		return fmt.Errorf("OCR_MAX_ATTEMPTS must be between 1 and 10, got %d", c.OCRMaxAttempts)
	}

	if c.MaxUploadSize < 1024 || c.MaxUploadSize > 104857600 { // 1KB to 100MB
		return fmt.Errorf("MAX_UPLOAD_SIZE must be between 1KB and 100MB, got %d", c.MaxUploadSize)
	}

	if c.OCRTimeout < time.Second {
		return fmt.Errorf("OCR_TIMEOUT_MS must be at least 1000, got %v", c.OCRTimeout)
	}

	if c.SessionRetention < time.Minute {
		return fmt.Errorf("SESSION_RETENTION_MS must be at least 60000, got %v", c.SessionRetention)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsMillisOrDefault gets environment variable as a millisecond duration
func getEnvAsMillisOrDefault(key string, defaultMs int64) time.Duration {
	return time.Duration(getEnvAsInt64OrDefault(key, defaultMs)) * time.Millisecond
}
