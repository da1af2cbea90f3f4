package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/services"
)

// UpdateTableCommentRequest for PUT /api/tables/{id}/comment.
type UpdateTableCommentRequest struct {
	Comment         string `json:"comment"`
	ExpectedVersion int64  `json:"expected_version"`
}

// UpdateColumnCommentsRequest for POST /api/columns/comments. All columns
// must belong to the same table.
type UpdateColumnCommentsRequest struct {
	Comments             []services.ColumnCommentEdit `json:"comments"`
	ExpectedTableVersion int64                        `json:"expected_table_version"`
}

// TablesHandler serves the extracted catalog and its annotations.
type TablesHandler struct {
	catalogService    services.CatalogService
	annotationService services.AnnotationService
	logger            *zap.Logger
}

// NewTablesHandler creates a new tables handler.
func NewTablesHandler(catalogService services.CatalogService, annotationService services.AnnotationService, logger *zap.Logger) *TablesHandler {
	return &TablesHandler{
		catalogService:    catalogService,
		annotationService: annotationService,
		logger:            logger,
	}
}

// RegisterRoutes registers the catalog routes on the given mux.
func (h *TablesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasources/{id}/tables", h.ListTables)
	mux.HandleFunc("GET /api/tables/{id}", h.GetTable)
	mux.HandleFunc("GET /api/tables/{id}/columns", h.GetColumns)
	mux.HandleFunc("PUT /api/tables/{id}/comment", h.UpdateTableComment)
	mux.HandleFunc("POST /api/columns/comments", h.UpdateColumnComments)
}

// ListTables handles GET /api/datasources/{id}/tables with page, per_page,
// sort_by and sort_order query parameters.
func (h *TablesHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "Invalid datasource ID format")
	if !ok {
		return
	}

	q := r.URL.Query()
	page := intQuery(q.Get("page"), 1)
	perPage := intQuery(q.Get("per_page"), 20)

	tables, pagination, err := h.catalogService.ListTables(r.Context(), id, page, perPage, q.Get("sort_by"), q.Get("sort_order"))
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"tables":     tables,
		"pagination": pagination,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetTable handles GET /api/tables/{id}, returning the table with columns
// and relationships.
func (h *TablesHandler) GetTable(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "Invalid table ID format")
	if !ok {
		return
	}
	detail, err := h.catalogService.GetTable(r.Context(), id)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, detail); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetColumns handles GET /api/tables/{id}/columns.
func (h *TablesHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "Invalid table ID format")
	if !ok {
		return
	}
	columns, err := h.catalogService.GetColumns(r.Context(), id)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"columns": columns}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateTableComment handles PUT /api/tables/{id}/comment. The write is
// rejected with a conflict when the table's version moved past
// expected_version.
func (h *TablesHandler) UpdateTableComment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "Invalid table ID format")
	if !ok {
		return
	}
	var req UpdateTableCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err := h.annotationService.UpdateTableComment(r.Context(), id, req.Comment, req.ExpectedVersion); err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]bool{"success": true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// UpdateColumnComments handles POST /api/columns/comments, applying a batch
// of column annotations all-or-nothing.
func (h *TablesHandler) UpdateColumnComments(w http.ResponseWriter, r *http.Request) {
	var req UpdateColumnCommentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err := h.annotationService.UpdateColumnComments(r.Context(), req.Comments, req.ExpectedTableVersion); err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]bool{"success": true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *TablesHandler) parseID(w http.ResponseWriter, r *http.Request, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_id", message); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// intQuery parses a positive integer query parameter with a fallback.
func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
