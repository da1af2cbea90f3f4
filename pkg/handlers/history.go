package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/services"
)

// HistoryHandler serves the extraction ledger.
type HistoryHandler struct {
	historyService services.HistoryService
	logger         *zap.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(historyService services.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
		logger:         logger,
	}
}

// RegisterRoutes registers the history routes on the given mux.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/extraction-history", h.List)
}

// List handles GET /api/extraction-history with datasource_id, status, page
// and per_page query parameters, newest first.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.HistoryFilter{
		Status:  q.Get("status"),
		Page:    intQuery(q.Get("page"), 1),
		PerPage: intQuery(q.Get("per_page"), 20),
	}
	if raw := q.Get("datasource_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_id", "Invalid datasource ID format"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		filter.DataSourceID = id
	}

	records, pagination, err := h.historyService.Query(r.Context(), filter)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"history":    records,
		"pagination": pagination,
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
