package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/models"
)

func TestHistoryHandler_List(t *testing.T) {
	historyService := &mockHistoryService{
		records: []*models.ExtractionRecord{{
			ID:           uuid.New(),
			DataSourceID: uuid.New(),
			Status:       models.ExtractionStatusSuccess,
			StartedAt:    time.Now(),
		}},
		pagination: models.NewPagination(1, 20, 1),
	}
	handler := NewHistoryHandler(historyService, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/extraction-history", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		History    []models.ExtractionRecord `json:"history"`
		Pagination models.Pagination         `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.History, 1)
	assert.Equal(t, 1, resp.Pagination.Total)
}

func TestHistoryHandler_List_ParsesFilters(t *testing.T) {
	historyService := &mockHistoryService{}
	handler := NewHistoryHandler(historyService, zap.NewNop())

	dsID := uuid.New()
	req := httptest.NewRequest(http.MethodGet,
		"/api/extraction-history?datasource_id="+dsID.String()+"&status=failed&page=3&per_page=50", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dsID, historyService.lastFilter.DataSourceID)
	assert.Equal(t, models.ExtractionStatusFailed, historyService.lastFilter.Status)
	assert.Equal(t, 3, historyService.lastFilter.Page)
	assert.Equal(t, 50, historyService.lastFilter.PerPage)
}

func TestHistoryHandler_List_InvalidDatasourceID(t *testing.T) {
	handler := NewHistoryHandler(&mockHistoryService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/extraction-history?datasource_id=nope", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec)["error"])
}
