/**
 * HTTP handlers for the web-ocr API
 *
 * Request validation surfaces synchronously as error responses; once a
 * session exists every later fault lives in session state, so the polling
 * client always receives a well-formed status payload.
 */

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wakka810/web-ocr/internal/apperr"
	"github.com/wakka810/web-ocr/internal/imagestore"
	"github.com/wakka810/web-ocr/internal/orchestrator"
	"github.com/wakka810/web-ocr/internal/session"
)

// Handlers bundles the API endpoints and their dependencies
type Handlers struct {
	logger        zerolog.Logger
	images        *imagestore.Store
	orch          *orchestrator.Orchestrator
	maxUploadSize int64

	// visionReady is false when the configured engine cannot run (e.g. no
	// Gemini credential); process requests are rejected with CONFIG_ERROR.
	visionReady bool
}

// NewHandlers creates the handler set
func NewHandlers(logger zerolog.Logger, images *imagestore.Store, orch *orchestrator.Orchestrator, maxUploadSize int64, visionReady bool) *Handlers {
	return &Handlers{
		logger:        logger.With().Str("component", "api").Logger(),
		images:        images,
		orch:          orch,
		maxUploadSize: maxUploadSize,
		visionReady:   visionReady,
	}
}

// uploadData is the POST /api/upload response payload
type uploadData struct {
	ImageID    string     `json:"imageId"`
	ImageURL   string     `json:"imageUrl"`
	Dimensions dimensions `json:"dimensions"`
}

type dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Upload handles POST /api/upload (multipart form, field "image")
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, apperr.CodeFileTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", h.maxUploadSize))
			return
		}
		writeError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid multipart form")
		return
	}

	form := r.MultipartForm
	for field := range form.File {
		if field != "image" {
			writeError(w, http.StatusBadRequest, apperr.CodeUnexpectedField,
				fmt.Sprintf("unexpected file field %q", field))
			return
		}
	}

	headers := form.File["image"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "multipart field \"image\" is required")
		return
	}
	if len(headers) > 1 {
		writeError(w, http.StatusBadRequest, apperr.CodeTooManyFiles, "only one image per upload")
		return
	}

	header := headers[0]
	file, err := header.Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, apperr.CodeUploadError, "failed to read upload")
		return
	}
	defer file.Close()

	mimeType := detectMimeType(file, header)
	if !imagestore.Supported(mimeType) {
		writeError(w, http.StatusBadRequest, apperr.CodeUploadError,
			fmt.Sprintf("unsupported content type: %s", mimeType))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, apperr.CodeFileTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", h.maxUploadSize))
			return
		}
		writeError(w, http.StatusBadRequest, apperr.CodeUploadError, "failed to read upload")
		return
	}

	img, err := h.images.Save(data, mimeType)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.logger.Info().
		Str("image_id", img.ID).
		Str("mime_type", img.MimeType).
		Int64("size", img.Size).
		Msg("image uploaded")

	writeJSON(w, http.StatusOK, uploadData{
		ImageID:  img.ID,
		ImageURL: "/uploads/" + img.Filename,
		Dimensions: dimensions{
			Width:  img.Width,
			Height: img.Height,
		},
	})
}

// processRequest is the POST /api/ocr/process body
type processRequest struct {
	ImageID string           `json:"imageId"`
	Regions []session.Region `json:"regions"`
}

// processData acknowledges an accepted session; results arrive via polling
type processData struct {
	SessionID      string              `json:"sessionId"`
	Results        []session.OCRResult `json:"results"`
	ProcessingTime int64               `json:"processingTime"`
	Success        bool                `json:"success"`
}

// Process handles POST /api/ocr/process
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid request body")
		return
	}

	if req.ImageID == "" || len(req.Regions) == 0 {
		writeError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "imageId and regions are required")
		return
	}

	if !h.visionReady {
		writeError(w, http.StatusInternalServerError, apperr.CodeConfigError,
			"vision backend is not configured")
		return
	}

	sessionID, err := h.orch.StartSession(r.Context(), req.ImageID, req.Regions)
	if err != nil {
		writeAppError(w, err)
		return
	}

	h.logger.Info().
		Str("session_id", sessionID).
		Str("image_id", req.ImageID).
		Int("regions", len(req.Regions)).
		Msg("session accepted")

	writeJSON(w, http.StatusOK, processData{
		SessionID:      sessionID,
		Results:        []session.OCRResult{},
		ProcessingTime: 0,
		Success:        true,
	})
}

// Status handles GET /api/ocr/status/{sessionId}
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	view, err := h.orch.Status(r.Context(), sessionID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// detectMimeType prefers content sniffing over the client-declared header
func detectMimeType(file multipart.File, header *multipart.FileHeader) string {
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	_, _ = file.Seek(0, io.SeekStart)

	if n > 0 {
		if sniffed := http.DetectContentType(buf[:n]); sniffed != "application/octet-stream" {
			return sniffed
		}
	}

	return header.Header.Get("Content-Type")
}
