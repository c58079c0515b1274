package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/deckd/internal/broker"
	"github.com/nerrad567/deckd/internal/hid"
	"github.com/nerrad567/deckd/internal/protocol"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeValidation        = "validation_error"
	ErrCodeLocked            = "locked"
	ErrCodeDeviceUnavailable = "device_unavailable"
	ErrCodeDeviceError       = "device_error"
	ErrCodeNotFound          = "not_found"
	ErrCodeInternal          = "internal_error"
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

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeOpError maps a device operation failure to an HTTP error response.
//
// Lock contention is 409, an absent device is 503, validation failures
// are 400, and mid-operation device faults are 502.
func writeOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, broker.ErrLocked):
		writeError(w, http.StatusConflict, ErrCodeLocked, "device is locked by a persistent client")
	case errors.Is(err, broker.ErrDeviceUnavailable),
		errors.Is(err, hid.ErrNotFound),
		errors.Is(err, hid.ErrNotOpen):
		writeError(w, http.StatusServiceUnavailable, ErrCodeDeviceUnavailable, "device is not available")
	case errors.Is(err, protocol.ErrTooManyTabs),
		errors.Is(err, protocol.ErrBadTabIndex),
		errors.Is(err, protocol.ErrUnknownSoftKeyType),
		errors.Is(err, protocol.ErrSoftKeyDataTooLong),
		errors.Is(err, protocol.ErrSoftKeySequenceTooLong),
		errors.Is(err, hid.ErrPayloadTooLarge):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, hid.ErrIO),
		errors.Is(err, hid.ErrResponseTimeout),
		errors.Is(err, hid.ErrFirmware):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
