package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPassesThroughStructuredErrors(t *testing.T) {
	original := New(CodeGeminiError, "quota exceeded", true)

	classified := Classify(original, CodeProcessingError)

	assert.Same(t, original, classified)
	assert.Equal(t, CodeGeminiError, classified.Code)
	assert.True(t, classified.Retryable)
}

func TestClassifyWrappedStructuredError(t *testing.T) {
	wrapped := fmt.Errorf("vision call: %w", New(CodeTimeout, "deadline hit", true))

	classified := Classify(wrapped, CodeGeminiError)

	require.NotNil(t, classified)
	assert.Equal(t, CodeTimeout, classified.Code)
	assert.True(t, classified.Retryable)
}

func TestClassifyMarkerMatch(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"gemini quota status", errors.New("gemini error RESOURCE_EXHAUSTED: quota"), true},
		{"gemini deadline status", errors.New("DEADLINE_EXCEEDED while waiting"), true},
		{"backend unavailable", errors.New("503 UNAVAILABLE"), true},
		{"internal server fault", errors.New("INTERNAL error from upstream"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"dns failure", errors.New("dial tcp: lookup api.example: no such host"), true},
		{"plain failure", errors.New("invalid image payload"), false},
		{"lowercase marker not matched", errors.New("resource_exhausted"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := Classify(tt.err, CodeGeminiError)
			require.NotNil(t, classified)
			assert.Equal(t, CodeGeminiError, classified.Code)
			assert.Equal(t, tt.retryable, classified.Retryable)
		})
	}
}

func TestIsRetryableExplicitFlagWins(t *testing.T) {
	// Message contains a transient marker but the explicit flag says no.
	err := New(CodeGeminiError, "UNAVAILABLE but permanently misconfigured", false)
	assert.False(t, IsRetryable(err))

	// And the other way around: no marker, flag says yes.
	assert.True(t, IsRetryable(New(CodeGeminiError, "flaky backend", true)))
}

func TestIsRetryableNilAndPlainErrors(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("bad request")))
	assert.True(t, IsRetryable(errors.New("upstream UNAVAILABLE")))
}

func TestTimeoutIsAlwaysRetryable(t *testing.T) {
	err := Timeout("operation timed out after 30s")
	assert.Equal(t, CodeTimeout, err.Code)
	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))
}

func TestErrorFormattingAndUnwrap(t *testing.T) {
	cause := errors.New("dial failed")
	err := Wrap(CodeGeminiError, "request failed", true, cause)

	assert.Contains(t, err.Error(), "GEMINI_ERROR")
	assert.Contains(t, err.Error(), "request failed")
	assert.Contains(t, err.Error(), "dial failed")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestFactoryClassifications(t *testing.T) {
	assert.False(t, SessionNotFound("abc").Retryable)
	assert.False(t, ImageNotFound("abc").Retryable)
	assert.False(t, ValidationError("too small").Retryable)
	assert.False(t, InvalidRequest("missing field").Retryable)
	assert.False(t, ConfigError("no key").Retryable)
	assert.False(t, ProcessingError("crop failed", nil).Retryable)
}
