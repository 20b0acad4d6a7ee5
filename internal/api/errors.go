package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/flowstore"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/service"
)

// Error codes for consistent error identification.
const (
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeBadRequest       = "bad_request"
	ErrCodeConflict         = "conflict"
	ErrCodeGenerationFailed = "generation_failed"
	ErrCodeInternalError    = "internal_error"
	ErrCodeServiceUnavail   = "service_unavailable"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error     string                 `json:"error"`                // Short error code
	Message   string                 `json:"message"`              // Human-readable message
	Details   map[string]interface{} `json:"details,omitempty"`    // Optional additional details
	RequestID string                 `json:"request_id,omitempty"` // Request ID for correlation
}

// requestIDContextKey is the context key for request ID.
type requestIDContextKey struct{}

// RequestIDKey is the exported context key for request ID.
var RequestIDKey = requestIDContextKey{}

// GetRequestID retrieves the request ID from context or request header.
func GetRequestID(ctx context.Context, r *http.Request) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return id
	}
	// Fall back to request header (set by gateway)
	return r.Header.Get("X-Request-ID")
}

// HTTPStatusToErrorCode maps HTTP status codes to error codes.
func HTTPStatusToErrorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrCodeBadRequest
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavail
	default:
		return ErrCodeInternalError
	}
}

// classify maps a service error to a status, code and client-safe message.
// Internal causes of generation failures never reach the client.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusInternalServerError, ErrCodeGenerationFailed, service.ErrGenerationFailed.Error()
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, ErrCodeBadRequest, err.Error()
	case errors.Is(err, flowstore.ErrFlowNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "specialization not found"
	case errors.Is(err, flowstore.ErrFlowExists):
		return http.StatusConflict, ErrCodeConflict, "specialization already exists"
	default:
		return http.StatusInternalServerError, ErrCodeInternalError, "internal error"
	}
}

// writeErrorResponse writes a standardized JSON error response. An empty code
// is derived from the status.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]interface{}) {
	requestID := GetRequestID(r.Context(), r)
	if code == "" {
		code = HTTPStatusToErrorCode(status)
	}

	resp := ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
	}

	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
