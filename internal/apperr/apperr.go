/**
 * Structured errors for the web-ocr server
 *
 * Every fault that crosses a component boundary is an *Error carrying a
 * stable code and a retryable classification. Classification lives here
 * and nowhere else, so the retry layer and the vision clients always
 * agree on what counts as transient.
 */

package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error category
type Code string

const (
	// Request / configuration errors
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeConfigError    Code = "CONFIG_ERROR"

	// Session errors
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeImageNotFound   Code = "IMAGE_NOT_FOUND"

	// Region pipeline errors
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeProcessingError Code = "PROCESSING_ERROR"

	// Vision backend errors
	CodeGeminiError Code = "GEMINI_ERROR"
	CodeTimeout     Code = "TIMEOUT"

	// Upload errors
	CodeFileTooLarge    Code = "FILE_TOO_LARGE"
	CodeUnexpectedField Code = "UNEXPECTED_FIELD"
	CodeTooManyFiles    Code = "TOO_MANY_FILES"
	CodeUploadError     Code = "UPLOAD_ERROR"
)

// transientMarkers are substrings that mark an error as retryable when it
// carries no explicit classification. The first four are Gemini status
// strings, the rest are network-level failure modes.
var transientMarkers = []string{
	"RESOURCE_EXHAUSTED",
	"DEADLINE_EXCEEDED",
	"UNAVAILABLE",
	"INTERNAL",
	"connection reset",
	"connection timed out",
	"no such host",
}

// Error is a structured error with a code and retryable classification
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with an explicit classification
func New(code Code, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// Wrap creates an Error wrapping a cause
func Wrap(code Code, message string, retryable bool, cause error) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable, Cause: cause}
}

// Factory functions for common errors

func InvalidRequest(message string) *Error {
	return New(CodeInvalidRequest, message, false)
}

func ConfigError(message string) *Error {
	return New(CodeConfigError, message, false)
}

func SessionNotFound(sessionID string) *Error {
	return New(CodeSessionNotFound, fmt.Sprintf("session not found: %s", sessionID), false)
}

func ImageNotFound(imageID string) *Error {
	return New(CodeImageNotFound, fmt.Sprintf("image not found: %s", imageID), false)
}

func ValidationError(message string) *Error {
	return New(CodeValidationError, message, false)
}

func ProcessingError(message string, cause error) *Error {
	return Wrap(CodeProcessingError, message, false, cause)
}

// Timeout marks a deadline expiry. Always retryable: the next attempt may
// land on a faster backend replica.
func Timeout(message string) *Error {
	return New(CodeTimeout, message, true)
}

// Classify converts an arbitrary error into an *Error. An existing *Error
// passes through unchanged (its explicit Retryable flag wins). Anything
// else is tagged with defaultCode and classified by marker substring match
// against its message.
func Classify(err error, defaultCode Code) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	return &Error{
		Code:      defaultCode,
		Message:   err.Error(),
		Retryable: matchesTransientMarker(err.Error()),
		Cause:     err,
	}
}

// IsRetryable reports whether err should be re-attempted. Explicit
// classification on an *Error takes precedence over marker matching.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	return matchesTransientMarker(err.Error())
}

func matchesTransientMarker(msg string) bool {
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
