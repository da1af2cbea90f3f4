// Package handlers wires the HTTP API onto the service layer.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/logging"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// RespondError maps a service error to an HTTP error response. Connector
// failures surface as gateway-style statuses so clients can tell a broken
// source from a broken catalog.
func RespondError(logger *zap.Logger, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	var connErr *source.ConnectorError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, apperrors.ErrUnsupportedType):
		status, code = http.StatusBadRequest, "unsupported_type"
	case errors.Is(err, apperrors.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrVersionConflict):
		status, code = http.StatusConflict, "version_conflict"
	case errors.Is(err, apperrors.ErrExtractionRunning):
		status, code = http.StatusConflict, "extraction_running"
	case errors.Is(err, apperrors.ErrCrossTableBatch):
		status, code = http.StatusBadRequest, "cross_table_batch"
	case errors.As(err, &connErr):
		switch connErr.Kind {
		case source.KindAuthFailed:
			status, code = http.StatusBadGateway, "source_auth_failed"
		case source.KindTimeout:
			status, code = http.StatusGatewayTimeout, "source_timeout"
		case source.KindUnreachable:
			status, code = http.StatusBadGateway, "source_unreachable"
		default:
			status, code = http.StatusBadGateway, "source_query_error"
		}
	}

	message := logging.SanitizeError(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("error", message))
	}
	if werr := ErrorResponse(w, status, code, message); werr != nil {
		logger.Error("Failed to write error response", zap.Error(werr))
	}
}
