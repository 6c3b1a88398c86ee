package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wakka810/web-ocr/internal/apperr"
)

// envelope is the JSON shape of every API response
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code apperr.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &errorBody{Message: message, Code: string(code)},
	})
}

// writeAppError maps a structured error to an HTTP status
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		writeError(w, http.StatusInternalServerError, apperr.CodeProcessingError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperr.CodeInvalidRequest, apperr.CodeValidationError, apperr.CodeUnexpectedField, apperr.CodeTooManyFiles:
		status = http.StatusBadRequest
	case apperr.CodeSessionNotFound, apperr.CodeImageNotFound:
		status = http.StatusNotFound
	case apperr.CodeFileTooLarge:
		status = http.StatusRequestEntityTooLarge
	case apperr.CodeUploadError:
		status = http.StatusBadRequest
	}

	writeError(w, status, appErr.Code, appErr.Message)
}
