/**
 * Session store
 *
 * Process-wide mapping from session id to session state. The interface is
 * injected so handlers and tests use the in-memory store while production
 * deployments may select the Redis or Postgres implementation.
 */

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wakka810/web-ocr/internal/apperr"
)

// Store owns Session objects. All mutation goes through UpsertResult and
// SetStatus; Get returns copies.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// UpsertResult replaces the result for the same region id if one
	// exists, otherwise appends. Fails once the session is terminal.
	UpsertResult(ctx context.Context, id string, result OCRResult) error

	// SetStatus applies a forward-only transition. Terminal states set
	// CompletedAt and freeze results.
	SetStatus(ctx context.Context, id string, status Status) error

	// Sweep removes sessions created before now-retention and returns the
	// number evicted.
	Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error)

	Close() error
}

// MemoryStore is the default in-process store
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session
func (m *MemoryStore) Create(_ context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID]; exists {
		return fmt.Errorf("session already exists: %s", sess.ID)
	}

	m.sessions[sess.ID] = sess.Clone()
	return nil
}

// Get returns a copy of the session
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, apperr.SessionNotFound(id)
	}

	return sess.Clone(), nil
}

// UpsertResult records or replaces a region's result
func (m *MemoryStore) UpsertResult(_ context.Context, id string, result OCRResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return apperr.SessionNotFound(id)
	}

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
}

// SetStatus applies a forward-only status transition
func (m *MemoryStore) SetStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return apperr.SessionNotFound(id)
	}

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
}

// Sweep evicts sessions older than the retention window
func (m *MemoryStore) Sweep(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, sess := range m.sessions {
		if sess.CreatedAt.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}

	return evicted, nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}

func regionKnown(sess *Session, regionID string) bool {
	for _, r := range sess.Regions {
		if r.ID == regionID {
			return true
		}
	}
	return false
}
