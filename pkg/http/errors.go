package http

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error             string `json:"error"`             // Machine-readable error code
	Message           string `json:"message"`           // Human-readable message
	Details           string `json:"details,omitempty"` // Optional additional context
	RetryAfter        int    `json:"retry_after,omitempty"`
	LockedUntil       string `json:"locked_until,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	Warning           string `json:"warning,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorResponse(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

// WriteErrorWithDetails writes a JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteErrorResponse(w, statusCode, ErrorResponse{Error: errorCode, Message: message, Details: details})
}

// WriteErrorResponse writes a fully populated error body
func WriteErrorResponse(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	WriteJSON(w, statusCode, resp)
}

// WriteAccountLocked writes 423 with a Retry-After header in whole seconds
func WriteAccountLocked(w http.ResponseWriter, retryAfter time.Duration, lockedUntil time.Time) {
	seconds := RetryAfterSeconds(retryAfter)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))

	resp := ErrorResponse{
		Error:      "account_locked",
		Message:    "Account temporarily locked due to too many failed attempts. Try again later.",
		RetryAfter: seconds,
	}
	if !lockedUntil.IsZero() {
		resp.LockedUntil = lockedUntil.UTC().Format(time.RFC3339)
	}
	WriteErrorResponse(w, http.StatusLocked, resp)
}

// RetryAfterSeconds rounds d up to whole seconds, minimum 1
func RetryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteValidationError(w http.ResponseWriter, details string) {
	WriteErrorWithDetails(w, http.StatusBadRequest, "validation_error", "Invalid request body", details)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
