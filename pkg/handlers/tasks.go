package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/services"
)

// TasksHandler manages scheduled extraction tasks.
type TasksHandler struct {
	taskService services.TaskService
	logger      *zap.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(taskService services.TaskService, logger *zap.Logger) *TasksHandler {
	return &TasksHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// RegisterRoutes registers the task routes on the given mux.
func (h *TasksHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/etl-tasks", h.List)
	mux.HandleFunc("POST /api/etl-tasks", h.Create)
	mux.HandleFunc("GET /api/etl-tasks/{id}", h.Get)
	mux.HandleFunc("PUT /api/etl-tasks/{id}", h.Update)
	mux.HandleFunc("DELETE /api/etl-tasks/{id}", h.Delete)
	mux.HandleFunc("POST /api/etl-tasks/{id}/execute", h.Execute)
}

// List handles GET /api/etl-tasks.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskService.List(r.Context())
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"tasks": tasks}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/etl-tasks.
func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input services.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	task, err := h.taskService.Create(r.Context(), input)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusCreated, task); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/etl-tasks/{id}.
func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	task, err := h.taskService.GetByID(r.Context(), id)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, task); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/etl-tasks/{id}.
func (h *TasksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var input services.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_body", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	task, err := h.taskService.Update(r.Context(), id, input)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, task); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/etl-tasks/{id}. History rows keep their record
// of past runs with the task reference cleared.
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.taskService.Delete(r.Context(), id); err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]bool{"success": true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Execute handles POST /api/etl-tasks/{id}/execute, running the task now.
func (h *TasksHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	record, err := h.taskService.Execute(r.Context(), id)
	if err != nil {
		RespondError(h.logger, w, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, record); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *TasksHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_id", "Invalid task ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
