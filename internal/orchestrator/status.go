package orchestrator

import (
	"context"
	"time"

	"github.com/wakka810/web-ocr/internal/session"
)

// Progress counts settled regions against the total
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// StatusView is the polling payload for one session
type StatusView struct {
	SessionID      string              `json:"sessionId"`
	Results        []session.OCRResult `json:"results"`
	ProcessingTime int64               `json:"processingTime"` // milliseconds
	Success        bool                `json:"success"`
	Status         session.Status      `json:"status"`
	Progress       Progress            `json:"progress"`
}

// Status returns the current view of a session. Repeated calls for a
// terminal session return identical payloads.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*StatusView, error) {
	sess, err := o.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(sess.CreatedAt)
	if sess.CompletedAt != nil {
		elapsed = sess.CompletedAt.Sub(sess.CreatedAt)
	}

	return &StatusView{
		SessionID:      sess.ID,
		Results:        sess.Results,
		ProcessingTime: elapsed.Milliseconds(),
		Success:        sess.Status != session.StatusFailed,
		Status:         sess.Status,
		Progress: Progress{
			Current: len(sess.Results),
			Total:   len(sess.Regions),
		},
	}, nil
}
