package response

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Common error codes
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
)

func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	JSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindBusinessRule:
		return http.StatusConflict
	case apperr.KindProvider:
		return http.StatusBadGateway
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// FromError renders err. Unknown errors are logged and reported as a bare 500
// so internals never leak; consistency failures are logged at error level
// because they need an operator. Provider responses stay in the log.
func FromError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	e, ok := apperr.As(err)
	if !ok || kind == apperr.KindInternal {
		logger.ErrorContext(ctx, "Unhandled error", "error", err)
		WriteError(w, http.StatusInternalServerError, "Internal server error", CodeInternalError)
		return
	}

	switch kind {
	case apperr.KindConsistency:
		logger.ErrorContext(ctx, "Consistency failure", "error", err)
	case apperr.KindProvider:
		logger.WarnContext(ctx, "Provider failure", "error", err)
	}

	status := StatusFor(kind)
	if apperr.HasCode(err, apperr.CodeQRExpired) {
		status = http.StatusGone
	}
	JSON(w, status, ErrorResponse{Error: e.Message, Code: e.Code, Fields: e.Fields})
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
