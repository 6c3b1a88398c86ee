// Package vision provides text-extraction engines for region crops.
package vision

import "context"

// DefaultPrompt is the instruction sent with each region crop.
const DefaultPrompt = "Extract all text from this image region. Return only the text content, " +
	"preserving line breaks. If there is no readable text, return an empty response."

// ExtractRequest is one region crop submitted for text extraction
type ExtractRequest struct {
	ImageBytes []byte
	MimeType   string
	Prompt     string
}

// Engine extracts text from an image region. Implementations classify
// their failures through apperr so the retry layer sees a consistent
// retryable flag.
type Engine interface {
	ExtractText(ctx context.Context, req ExtractRequest) (string, error)

	// Name identifies the engine in logs and health output
	Name() string
}
