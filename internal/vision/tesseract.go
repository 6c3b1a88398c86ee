/**
 * Tesseract engine - offline text extraction
 *
 * Local alternative to the Gemini backend for deployments without an API
 * key or outbound network access. Selected with OCR_ENGINE=tesseract.
 */

package vision

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/wakka810/web-ocr/internal/apperr"
)

// TesseractEngine runs Tesseract over region crops
type TesseractEngine struct {
	language string
}

// NewTesseractEngine creates a Tesseract engine. Language defaults to eng.
func NewTesseractEngine(language string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	return &TesseractEngine{language: language}
}

// Name identifies the engine
func (t *TesseractEngine) Name() string {
	return "tesseract"
}

// ExtractText runs OCR over the crop. The prompt is ignored; Tesseract has
// no instruction channel. Tesseract failures are never retryable: the same
// input produces the same outcome.
func (t *TesseractEngine) ExtractText(ctx context.Context, req ExtractRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return "", apperr.Wrap(apperr.CodeProcessingError, "failed to set tesseract language", false, err)
	}

	if err := client.SetImageFromBytes(req.ImageBytes); err != nil {
		return "", apperr.Wrap(apperr.CodeProcessingError, "failed to set image", false, err)
	}

	text, err := client.Text()
	if err != nil {
		return "", apperr.Wrap(apperr.CodeProcessingError, "tesseract OCR failed", false, err)
	}

	return strings.TrimSpace(text), nil
}
