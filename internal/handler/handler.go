package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"kart-reconciler/internal/model"

	"github.com/rs/zerolog"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code, code and message.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Str("error", code).Str("message", message).Int("status", status).Msg("handler error")
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps err to its HTTP status and writes it.
func writeDomainError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var de *model.DomainError
	if !errors.As(err, &de) {
		logger.Error().Err(err).Msg("unexpected error")
		writeError(w, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error", logger)
		return
	}

	if de.Retryable {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, statusFor(de.Code), de.Code, de.Message, logger)
}

func statusFor(code string) int {
	switch code {
	case model.ErrCodeInvalidJSON, model.ErrCodeMalformedPayload:
		return http.StatusBadRequest
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeOrderNotFound:
		return http.StatusNotFound
	case model.ErrCodePaymentUnverified:
		return http.StatusConflict
	case model.ErrCodeAmountMismatch:
		return http.StatusUnprocessableEntity
	case model.ErrCodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode returns the stable code of err, INTERNAL_ERROR for non-domain errors.
func errorCode(err error) string {
	var de *model.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return model.ErrCodeInternalError
}
