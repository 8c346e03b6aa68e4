package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencanvas/canvas-core/internal/canvas"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeTimeout      = "timeout"
	ErrCodeInternal     = "internal_error"
	ErrCodeBadGateway   = "device_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDeviceError maps device-layer errors onto HTTP statuses:
// unreachable and busy devices are service conditions of the gateway,
// not client faults.
func writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, canvas.ErrStale):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no status snapshot available")
	case errors.Is(err, canvas.ErrUnreachable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "device unreachable")
	case errors.Is(err, canvas.ErrDeviceBusy):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device busy")
	case errors.Is(err, canvas.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not respond in time")
	case errors.Is(err, canvas.ErrOperationRejected):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, err.Error())
	case errors.Is(err, canvas.ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		writeInternalError(w, err.Error())
	}
}
