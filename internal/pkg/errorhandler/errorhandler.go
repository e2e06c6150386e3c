package errorhandler

import (
	"context"
	"net/http"

	"github.com/liwaywai/lending-api/internal/pkg/logger"
	"github.com/liwaywai/lending-api/internal/pkg/response"
)

// HandleError logs the failure against the request-scoped logger and writes the error envelope.
// Server-side failures are logged at error level, client mistakes at warn.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	l := logger.FromContext(ctx)
	event := l.Warn()
	if status >= http.StatusInternalServerError {
		event = l.Error()
	}
	if err != nil {
		event = event.Err(err)
	}
	event.
		Str("error_code", code).
		Int("status_code", status).
		Msg(message)

	response.Error(w, status, code, message)
}

// HandleErrorWithDetails is HandleError for responses that carry field-level details
func HandleErrorWithDetails(ctx context.Context, w http.ResponseWriter, status int, code, message string, details map[string]string, err error) {
	event := logger.FromContext(ctx).Warn().
		Str("error_code", code).
		Int("status_code", status).
		Interface("error_details", details)
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(message)

	response.ErrorWithDetails(w, status, code, message, details)
}

// ValidationError answers 422 with per-field messages
func ValidationError(ctx context.Context, w http.ResponseWriter, details map[string]string) {
	HandleErrorWithDetails(ctx, w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", details, nil)
}

// Internal logs err and answers with the generic 500 envelope.
func Internal(ctx context.Context, w http.ResponseWriter, err error) {
	logger.FromContext(ctx).Error().Err(err).Msg("request failed")
	response.InternalError(w)
}

// LogExternalServiceError logs errors from external service calls
func LogExternalServiceError(ctx context.Context, service, endpoint string, statusCode int, err error, body string) {
	logger.FromContext(ctx).Warn().
		Str("external_service", service).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Err(err).
		Str("response_body", truncateString(body, 1000)).
		Msg("External service error")
}

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "...<truncated>"
	}
	return s
}
