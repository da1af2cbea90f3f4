package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/services"
)

func TestTablesHandler_ListTables_QueryParams(t *testing.T) {
	catalog := &mockCatalogService{
		tables:     []*models.TableMeta{{ID: uuid.New(), SchemaName: "public", TableName: "orders"}},
		pagination: models.NewPagination(2, 10, 25),
	}
	handler := NewTablesHandler(catalog, &mockAnnotationService{}, zap.NewNop())

	dsID := uuid.New()
	req := httptest.NewRequest(http.MethodGet,
		"/api/datasources/"+dsID.String()+"/tables?page=2&per_page=10&sort_by=row_count&sort_order=desc", nil)
	req.SetPathValue("id", dsID.String())
	rec := httptest.NewRecorder()
	handler.ListTables(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, catalog.lastPage)
	assert.Equal(t, 10, catalog.lastPerPage)
	assert.Equal(t, "row_count", catalog.lastSortBy)
	assert.Equal(t, "desc", catalog.lastSortOrder)

	var resp struct {
		Tables     []models.TableMeta `json:"tables"`
		Pagination models.Pagination  `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Tables, 1)
	assert.Equal(t, 25, resp.Pagination.Total)
}

func TestTablesHandler_ListTables_DefaultsBadPageParams(t *testing.T) {
	catalog := &mockCatalogService{}
	handler := NewTablesHandler(catalog, &mockAnnotationService{}, zap.NewNop())

	dsID := uuid.New()
	req := httptest.NewRequest(http.MethodGet,
		"/api/datasources/"+dsID.String()+"/tables?page=zero&per_page=-5", nil)
	req.SetPathValue("id", dsID.String())
	rec := httptest.NewRecorder()
	handler.ListTables(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, catalog.lastPage)
	assert.Equal(t, 20, catalog.lastPerPage)
}

func TestTablesHandler_ListTables_InvalidSortField(t *testing.T) {
	catalog := &mockCatalogService{err: apperrors.ErrValidation}
	handler := NewTablesHandler(catalog, &mockAnnotationService{}, zap.NewNop())

	dsID := uuid.New()
	req := httptest.NewRequest(http.MethodGet,
		"/api/datasources/"+dsID.String()+"/tables?sort_by=;drop", nil)
	req.SetPathValue("id", dsID.String())
	rec := httptest.NewRecorder()
	handler.ListTables(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeError(t, rec)["error"])
}

func TestTablesHandler_GetTable(t *testing.T) {
	tableID := uuid.New()
	catalog := &mockCatalogService{detail: &services.TableDetail{
		TableMeta: models.TableMeta{ID: tableID, SchemaName: "public", TableName: "orders", Version: 3},
		Relations: []models.RelatedTable{{
			Direction:        "outgoing",
			ColumnName:       "customer_id",
			RelatedTableName: "customers",
			RelatedColumn:    "id",
		}},
	}}
	handler := NewTablesHandler(catalog, &mockAnnotationService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/tables/"+tableID.String(), nil)
	req.SetPathValue("id", tableID.String())
	rec := httptest.NewRecorder()
	handler.GetTable(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		models.TableMeta
		Relationships []models.RelatedTable `json:"relationships"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "orders", resp.TableName)
	assert.Equal(t, int64(3), resp.Version)
	require.Len(t, resp.Relationships, 1)
	assert.Equal(t, "customers", resp.Relationships[0].RelatedTableName)
}

func TestTablesHandler_GetTable_NotFound(t *testing.T) {
	catalog := &mockCatalogService{err: apperrors.ErrNotFound}
	handler := NewTablesHandler(catalog, &mockAnnotationService{}, zap.NewNop())

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/tables/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	handler.GetTable(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTablesHandler_UpdateTableComment(t *testing.T) {
	annotations := &mockAnnotationService{}
	handler := NewTablesHandler(&mockCatalogService{}, annotations, zap.NewNop())

	tableID := uuid.New()
	body := `{"comment":"订单主表","expected_version":4}`
	req := httptest.NewRequest(http.MethodPut, "/api/tables/"+tableID.String()+"/comment", strings.NewReader(body))
	req.SetPathValue("id", tableID.String())
	rec := httptest.NewRecorder()
	handler.UpdateTableComment(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tableID, annotations.lastTableID)
	assert.Equal(t, "订单主表", annotations.lastComment)
	assert.Equal(t, int64(4), annotations.lastExpectedVersion)
}

func TestTablesHandler_UpdateTableComment_StaleVersion(t *testing.T) {
	annotations := &mockAnnotationService{err: apperrors.ErrVersionConflict}
	handler := NewTablesHandler(&mockCatalogService{}, annotations, zap.NewNop())

	tableID := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/api/tables/"+tableID.String()+"/comment",
		strings.NewReader(`{"comment":"stale","expected_version":1}`))
	req.SetPathValue("id", tableID.String())
	rec := httptest.NewRecorder()
	handler.UpdateTableComment(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "version_conflict", decodeError(t, rec)["error"])
}

func TestTablesHandler_UpdateColumnComments(t *testing.T) {
	annotations := &mockAnnotationService{}
	handler := NewTablesHandler(&mockCatalogService{}, annotations, zap.NewNop())

	colA, colB := uuid.New(), uuid.New()
	payload := UpdateColumnCommentsRequest{
		Comments: []services.ColumnCommentEdit{
			{ColumnID: colA, Comment: "primary key"},
			{ColumnID: colB, Comment: ""},
		},
		ExpectedTableVersion: 7,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/columns/comments", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	handler.UpdateColumnComments(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, annotations.lastEdits, 2)
	assert.Equal(t, colA, annotations.lastEdits[0].ColumnID)
	assert.Equal(t, int64(7), annotations.lastExpectedVersion)
}

func TestTablesHandler_UpdateColumnComments_CrossTableBatch(t *testing.T) {
	annotations := &mockAnnotationService{err: apperrors.ErrCrossTableBatch}
	handler := NewTablesHandler(&mockCatalogService{}, annotations, zap.NewNop())

	body := `{"comments":[{"column_id":"` + uuid.NewString() + `","comment":"x"}],"expected_table_version":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/columns/comments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.UpdateColumnComments(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cross_table_batch", decodeError(t, rec)["error"])
}

func TestTablesHandler_GetColumns(t *testing.T) {
	tableID := uuid.New()
	catalog := &mockCatalogService{columns: []models.ColumnMeta{
		{ID: uuid.New(), TableID: tableID, ColumnName: "id", DataType: "bigint", OrdinalPosition: 1},
		{ID: uuid.New(), TableID: tableID, ColumnName: "status", DataType: "varchar(32)", IsNullable: true, OrdinalPosition: 2},
	}}
	handler := NewTablesHandler(catalog, &mockAnnotationService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/tables/"+tableID.String()+"/columns", nil)
	req.SetPathValue("id", tableID.String())
	rec := httptest.NewRecorder()
	handler.GetColumns(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Columns []models.ColumnMeta `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Columns, 2)
	assert.Equal(t, "status", resp.Columns[1].ColumnName)
}
