package session

import (
	"fmt"
	"time"
)

// StoreConfig selects and configures a Store backend
type StoreConfig struct {
	Backend     string // "memory", "redis" or "postgres"
	RedisURL    string
	DatabaseURL string
	Retention   time.Duration
}

// NewStore builds the configured store backend. The memory backend is the
// default and empties on restart.
func NewStore(cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(cfg.RedisURL, cfg.Retention)
	case "postgres":
		return NewPostgresStore(cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown session store backend: %q", cfg.Backend)
	}
}
