/**
 * Session model for region OCR requests
 *
 * A session is the server-side record of one multi-region text-extraction
 * request. It is owned by the session store; the orchestrator mutates it
 * only through the store's append/status entry points.
 */

package session

import (
	"time"
)

// Status is the session lifecycle state
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is sticky
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// allowedTransitions encodes the forward-only state machine:
// pending -> processing -> {completed, failed}.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from -> to is a legal forward transition
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Region is a user-drawn rectangle over the uploaded image, in pixels.
// Immutable once submitted.
type Region struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Color  string  `json:"color"`
	Label  string  `json:"label,omitempty"`
}

// ResultError is a captured per-region failure
type ResultError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// OCRResult is the outcome for a single region. Exactly one of Text or
// Error is meaningful; Enhanced reports whether OCR enhancement was
// applied or the original crop was used as-is.
type OCRResult struct {
	RegionID       string       `json:"regionId"`
	Text           string       `json:"text"`
	ProcessingTime int64        `json:"processingTime"` // milliseconds
	Enhanced       bool         `json:"enhanced"`
	Error          *ResultError `json:"error,omitempty"`
}

// Session records one in-flight or completed extraction request
type Session struct {
	ID          string      `json:"id"`
	ImageID     string      `json:"imageId"`
	Regions     []Region    `json:"regions"`
	Results     []OCRResult `json:"results"`
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so readers never alias store-owned state
func (s *Session) Clone() *Session {
	out := *s
	out.Regions = append([]Region(nil), s.Regions...)
	out.Results = append([]OCRResult(nil), s.Results...)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
