package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/services"
)

// TestConnectionResponse reports a connectivity check result.
type TestConnectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DatasourcesHandler handles datasource CRUD, connectivity tests, and manual
// extraction triggers.
type DatasourcesHandler struct {
	datasourceService services.DatasourceService
	extractionService services.ExtractionService
	logger            *zap.Logger
}

// NewDatasourcesHandler creates a new datasources handler.
func NewDatasourcesHandler(datasourceService services.DatasourceService, extractionService services.ExtractionService, logger *zap.Logger) *DatasourcesHandler {
	return &DatasourcesHandler{
		datasourceService: datasourceService,
		extractionService: extractionService,
		logger:            logger,
	}
}

// RegisterRoutes registers the datasource routes on the given mux.
func (h *DatasourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/datasources", h.List)
	mux.HandleFunc("POST /api/datasources", h.Create)
	mux.HandleFunc("POST /api/datasources/test", h.TestInput)
	mux.HandleFunc("GET /api/datasources/{id}", h.Get)
	mux.HandleFunc("PUT /api/datasources/{id}", h.Update)
	mux.HandleFunc("DELETE /api/datasources/{id}", h.Delete)
	mux.HandleFunc("POST /api/datasources/{id}/test", h.TestStored)
	mux.HandleFunc("POST /api/datasources/{id}/extract", h.Extract)
	mux.HandleFunc("GET /api/datasource-types", h.Types)
}

// List handles GET /api/datasources.
func (h *DatasourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	datasources, err := h.datasourceService.List(r.Context())
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"datasources": datasources}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/datasources.
func (h *DatasourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.DatasourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ds, err := h.datasourceService.Create(r.Context(), input)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, ds); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/datasources/{id}.
func (h *DatasourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	ds, err := h.datasourceService.GetByID(r.Context(), id)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ds); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/datasources/{id}. An empty password keeps the
// stored one.
func (h *DatasourcesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var input services.DatasourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ds, err := h.datasourceService.Update(r.Context(), id, input)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, ds); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/datasources/{id}. All extracted metadata and
// history for the datasource goes with it.
func (h *DatasourcesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.datasourceService.Delete(r.Context(), id); err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]bool{"success": true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// TestStored handles POST /api/datasources/{id}/test.
func (h *DatasourcesHandler) TestStored(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.datasourceService.TestStored(r.Context(), id); err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, TestConnectionResponse{Success: true, Message: "connection ok"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// TestInput handles POST /api/datasources/test for yet-unsaved settings.
func (h *DatasourcesHandler) TestInput(w http.ResponseWriter, r *http.Request) {
	var input services.DatasourceInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err := h.datasourceService.TestInput(r.Context(), input); err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, TestConnectionResponse{Success: true, Message: "connection ok"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Extract handles POST /api/datasources/{id}/extract, triggering a manual
// extraction. A concurrent run for the same datasource is a conflict, not a
// queue.
func (h *DatasourcesHandler) Extract(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	record, err := h.extractionService.Extract(r.Context(), id, nil)
	if err != nil {
		// Failed attempts still leave a ledger record; the error response
		// carries the classified cause.
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, record); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Types handles GET /api/datasource-types.
func (h *DatasourcesHandler) Types(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]any{"types": h.datasourceService.SupportedTypes()}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *DatasourcesHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_id", "Invalid datasource ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
