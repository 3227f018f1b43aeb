// Package render writes JSON responses and maps availability errors to HTTP.
package render

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Organizer string `json:"organizer,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Boundary  string `json:"boundary,omitempty"`
}

// JSON writes payload with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, availability.ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, availability.ErrOutOfRange),
		errors.Is(err, availability.ErrInvalidTimezone),
		errors.Is(err, availability.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, availability.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as JSON. Unclassified errors are logged and hidden.
func Error(w http.ResponseWriter, logger *logging.Logger, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: err.Error()}
	var ae *availability.Error
	if errors.As(err, &ae) {
		body.Field = ae.Field
		body.Organizer = ae.Organizer
		body.EventType = ae.EventType
		body.Boundary = ae.Boundary
	}
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = logging.Default()
		}
		logger.Error("request failed", "error", err)
		body = ErrorBody{Error: "internal server error"}
	}
	JSON(w, status, body)
}

// Message writes a plain error message with status.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg})
}
