/**
 * Redis-backed session store
 *
 * Sessions are stored as JSON under webocr:session:{id} with the retention
 * window as key TTL. Redis enforces retention on its own; Sweep exists for
 * interface parity and to reclaim keys written with a longer TTL.
 */

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wakka810/web-ocr/internal/apperr"
)

const redisKeyPrefix = "webocr:session:"

// RedisStore implements Store on a Redis server
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(redisURL string, retention time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, retention: retention}, nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

// Create registers a new session
func (r *RedisStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, redisKey(sess.ID), data, r.retention).Result()
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session already exists: %s", sess.ID)
	}

	return nil
}

// Get returns the session for id
func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if err == redis.Nil {
		return nil, apperr.SessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &sess, nil
}

// UpsertResult records or replaces a region's result. Each session has a
// single writer (its orchestrator task), so read-modify-write is safe.
func (r *RedisStore) UpsertResult(ctx context.Context, id string, result OCRResult) error {
	return r.mutate(ctx, id, func(sess *Session) error {
		if sess.Status.Terminal() {
			return fmt.Errorf("session %s is %s, results are frozen", id, sess.Status)
		}
		if !regionKnown(sess, result.RegionID) {
			return fmt.Errorf("session %s has no region %s", id, result.RegionID)
		}

		for i := range sess.Results {
			if sess.Results[i].RegionID == result.RegionID {
				sess.Results[i] = result
				return nil
			}
		}
		sess.Results = append(sess.Results, result)
		return nil
	})
}

// SetStatus applies a forward-only status transition
func (r *RedisStore) SetStatus(ctx context.Context, id string, status Status) error {
	return r.mutate(ctx, id, func(sess *Session) error {
		if sess.Status == status {
			return nil
		}
		if !CanTransition(sess.Status, status) {
			return fmt.Errorf("illegal status transition %s -> %s for session %s", sess.Status, status, id)
		}

		sess.Status = status
		if status.Terminal() {
			now := time.Now()
			sess.CompletedAt = &now
		}
		return nil
	})
}

// Sweep scans for sessions older than the retention window
func (r *RedisStore) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)
	evicted := 0

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			continue // expired between SCAN and GET
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}

		if sess.CreatedAt.Before(cutoff) {
			if err := r.client.Del(ctx, key).Err(); err == nil {
				evicted++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return evicted, fmt.Errorf("session sweep scan failed: %w", err)
	}

	return evicted, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) mutate(ctx context.Context, id string, fn func(*Session) error) error {
	sess, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := fn(sess); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, redisKey(id), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}
