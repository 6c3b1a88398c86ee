/**
 * PostgreSQL-backed session store
 *
 * Regions and results are stored as JSONB alongside the session row.
 * Single-writer-per-session makes read-modify-write on the results column
 * safe without row locking.
 */

package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/wakka810/web-ocr/internal/apperr"
)

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the database and ensures the schema exists
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func (p *PostgresStore) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ocr_sessions (
			id           TEXT PRIMARY KEY,
			image_id     TEXT NOT NULL,
			regions      JSONB NOT NULL DEFAULT '[]'::jsonb,
			results      JSONB NOT NULL DEFAULT '[]'::jsonb,
			status       TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)
	`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure ocr_sessions schema: %w", err)
	}
	return nil
}

// Create registers a new session
func (p *PostgresStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}

	regionsJSON, err := json.Marshal(sess.Regions)
	if err != nil {
		return fmt.Errorf("failed to marshal regions: %w", err)
	}
	resultsJSON, err := json.Marshal(sess.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	query := `
		INSERT INTO ocr_sessions (id, image_id, regions, results, status, created_at, completed_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7)
	`
	_, err = p.db.ExecContext(ctx, query,
		sess.ID, sess.ImageID, regionsJSON, resultsJSON,
		string(sess.Status), sess.CreatedAt, sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// Get returns the session for id
func (p *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT id, image_id, regions, results, status, created_at, completed_at
		FROM ocr_sessions
		WHERE id = $1
	`

	var (
		sess        Session
		regionsJSON []byte
		resultsJSON []byte
		status      string
		completedAt sql.NullTime
	)

	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID, &sess.ImageID, &regionsJSON, &resultsJSON,
		&status, &sess.CreatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.SessionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := json.Unmarshal(regionsJSON, &sess.Regions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal regions: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &sess.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}

	sess.Status = Status(status)
	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}

	return &sess, nil
}

// UpsertResult records or replaces a region's result
func (p *PostgresStore) UpsertResult(ctx context.Context, id string, result OCRResult) error {
	sess, err := p.Get(ctx, id)
	if err != nil {
		return err
	}

	if sess.Status.Terminal() {
		return fmt.Errorf("session %s is %s, results are frozen", id, sess.Status)
	}
	if !regionKnown(sess, result.RegionID) {
		return fmt.Errorf("session %s has no region %s", id, result.RegionID)
	}

	replaced := false
	for i := range sess.Results {
		if sess.Results[i].RegionID == result.RegionID {
			sess.Results[i] = result
			replaced = true
			break
		}
	}
	if !replaced {
		sess.Results = append(sess.Results, result)
	}

	resultsJSON, err := json.Marshal(sess.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	_, err = p.db.ExecContext(ctx,
		`UPDATE ocr_sessions SET results = $2::jsonb WHERE id = $1`,
		id, resultsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update session results: %w", err)
	}

	return nil
}

// SetStatus applies a forward-only status transition
func (p *PostgresStore) SetStatus(ctx context.Context, id string, status Status) error {
	sess, err := p.Get(ctx, id)
	if err != nil {
		return err
	}

	if sess.Status == status {
		return nil
	}
	if !CanTransition(sess.Status, status) {
		return fmt.Errorf("illegal status transition %s -> %s for session %s", sess.Status, status, id)
	}

	var completedAt *time.Time
	if status.Terminal() {
		now := time.Now()
		completedAt = &now
	}

	_, err = p.db.ExecContext(ctx,
		`UPDATE ocr_sessions SET status = $2, completed_at = COALESCE($3, completed_at) WHERE id = $1`,
		id, string(status), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	return nil
}

// Sweep deletes sessions created before the retention cutoff
func (p *PostgresStore) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM ocr_sessions WHERE created_at < $1`,
		now.Add(-retention),
	)
	if err != nil {
		return 0, fmt.Errorf("session sweep failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return int(affected), nil
}

// Close closes the database connection
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
