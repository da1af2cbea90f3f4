package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/apperrors"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespondError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("table %q: %w", "orders", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"validation", apperrors.ErrValidation, http.StatusBadRequest, "validation_failed"},
		{"unsupported type", apperrors.ErrUnsupportedType, http.StatusBadRequest, "unsupported_type"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"version conflict", apperrors.ErrVersionConflict, http.StatusConflict, "version_conflict"},
		{"extraction running", apperrors.ErrExtractionRunning, http.StatusConflict, "extraction_running"},
		{"cross table batch", apperrors.ErrCrossTableBatch, http.StatusBadRequest, "cross_table_batch"},
		{"source auth failed", &source.ConnectorError{Kind: source.KindAuthFailed, Err: errors.New("login refused")}, http.StatusBadGateway, "source_auth_failed"},
		{"source unreachable", &source.ConnectorError{Kind: source.KindUnreachable, Err: errors.New("no route to host")}, http.StatusBadGateway, "source_unreachable"},
		{"source timeout", &source.ConnectorError{Kind: source.KindTimeout, Err: errors.New("deadline exceeded")}, http.StatusGatewayTimeout, "source_timeout"},
		{"source query error", &source.ConnectorError{Kind: source.KindQueryError, Err: errors.New("syntax error")}, http.StatusBadGateway, "source_query_error"},
		{"unknown error", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(zap.NewNop(), rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestRespondError_RedactsCredentials(t *testing.T) {
	err := &source.ConnectorError{
		Kind: source.KindAuthFailed,
		Err:  errors.New(`connect "postgres://app:hunter2@db:5432/warehouse" failed`),
	}

	rec := httptest.NewRecorder()
	RespondError(zap.NewNop(), rec, err)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.NotContains(t, body["message"], "hunter2")
	assert.Contains(t, body["message"], "[REDACTED]")
}

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusOK, map[string]string{"hello": "world"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestWriteJSON_NonOKStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]string{"hello": "world"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
}
