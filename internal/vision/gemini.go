/**
 * Gemini vision client
 *
 * Sends a single generateContent call per region crop with the image
 * inlined as base64. Failures are classified through apperr: Gemini status
 * strings such as RESOURCE_EXHAUSTED and UNAVAILABLE mark an error as
 * retryable, everything else is terminal for that region.
 */

package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakka810/web-ocr/internal/apperr"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Gemini generateContent API
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// GeminiOption customizes the client
type GeminiOption func(*GeminiClient)

// WithBaseURL overrides the API endpoint (used by tests)
func WithBaseURL(baseURL string) GeminiOption {
	return func(c *GeminiClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(c *GeminiClient) {
		c.httpClient = client
	}
}

// NewGeminiClient creates a Gemini vision client. The API key is required.
func NewGeminiClient(apiKey, model string, logger zerolog.Logger, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, apperr.ConfigError("Gemini API key is not configured")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	c := &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultGeminiBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With().Str("component", "gemini").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Request/response shapes for generateContent

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobPart `json:"inline_data,omitempty"`
}

type geminiBlobPart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Name identifies the engine
func (c *GeminiClient) Name() string {
	return "gemini"
}

// ExtractText sends one inference call and returns the trimmed output text
func (c *GeminiClient) ExtractText(ctx context.Context, req ExtractRequest) (string, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	body := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiBlobPart{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(req.ImageBytes),
				}},
			},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeGeminiError, "failed to marshal request", false, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Wrap(apperr.CodeGeminiError, "failed to create request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network-level failures classify by marker match on the message
		return "", apperr.Classify(fmt.Errorf("gemini request failed: %w", err), apperr.CodeGeminiError)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeGeminiError, "failed to read response", false, err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperr.Wrap(apperr.CodeGeminiError,
			fmt.Sprintf("failed to parse response (status %d)", resp.StatusCode), false, err)
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		return "", c.classifyAPIError(resp.StatusCode, parsed.Error, respBody)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", apperr.New(apperr.CodeGeminiError, "no candidates in response", false)
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	c.logger.Debug().
		Int("image_bytes", len(req.ImageBytes)).
		Int("text_len", text.Len()).
		Dur("duration", time.Since(start)).
		Msg("text extracted")

	return strings.TrimSpace(text.String()), nil
}

// classifyAPIError converts a Gemini error payload into a structured error
// whose retryable flag follows the status string markers.
func (c *GeminiClient) classifyAPIError(statusCode int, apiErr *geminiError, raw []byte) error {
	if apiErr == nil {
		return apperr.Classify(
			fmt.Errorf("gemini returned status %d: %s", statusCode, string(raw)),
			apperr.CodeGeminiError)
	}

	// Embed the status string so marker classification sees it
	msg := fmt.Sprintf("gemini error %s: %s", apiErr.Status, apiErr.Message)
	return apperr.Classify(fmt.Errorf("%s", msg), apperr.CodeGeminiError)
}
