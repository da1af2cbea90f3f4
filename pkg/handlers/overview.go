package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/services"
)

// OverviewHandler serves catalog-wide statistics.
type OverviewHandler struct {
	overviewService services.OverviewService
	logger          *zap.Logger
}

// NewOverviewHandler creates a new overview handler.
func NewOverviewHandler(overviewService services.OverviewService, logger *zap.Logger) *OverviewHandler {
	return &OverviewHandler{
		overviewService: overviewService,
		logger:          logger,
	}
}

// RegisterRoutes registers the overview route on the given mux.
func (h *OverviewHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/overview", h.Get)
}

// Get handles GET /api/overview.
func (h *OverviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	overview, err := h.overviewService.Overview(r.Context())
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, overview); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
