package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/repositories"
	"github.com/metacat-dev/metacat/pkg/scheduler"
)

// TaskInput carries the writable fields of a scheduled extraction task.
type TaskInput struct {
	Name         string          `json:"name"`
	DataSourceID uuid.UUID       `json:"datasource_id"`
	Schedule     models.Schedule `json:"schedule"`
	Status       string          `json:"status"`
	Description  string          `json:"description"`
}

// TaskService manages scheduled extraction tasks.
type TaskService interface {
	Create(ctx context.Context, input TaskInput) (*models.ExtractionTask, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExtractionTask, error)
	List(ctx context.Context) ([]*models.ExtractionTask, error)
	Update(ctx context.Context, id uuid.UUID, input TaskInput) (*models.ExtractionTask, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Execute runs a task's extraction immediately, outside its schedule.
	// The run is recorded against the task and its run times advance.
	Execute(ctx context.Context, id uuid.UUID) (*models.ExtractionRecord, error)
}

type taskService struct {
	repo        repositories.TaskRepository
	datasources DatasourceService
	extractions ExtractionService
	location    *time.Location
	logger      *zap.Logger
}

// NewTaskService creates a TaskService. location is the timezone cron
// schedules evaluate in.
func NewTaskService(
	repo repositories.TaskRepository,
	datasources DatasourceService,
	extractions ExtractionService,
	location *time.Location,
	logger *zap.Logger,
) TaskService {
	if location == nil {
		location = time.UTC
	}
	return &taskService{
		repo:        repo,
		datasources: datasources,
		extractions: extractions,
		location:    location,
		logger:      logger.Named("task-service"),
	}
}

var _ TaskService = (*taskService)(nil)

func (s *taskService) Create(ctx context.Context, input TaskInput) (*models.ExtractionTask, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = models.TaskStatusActive
	}

	task := &models.ExtractionTask{
		Name:         input.Name,
		DataSourceID: input.DataSourceID,
		Schedule:     input.Schedule,
		Status:       status,
		Description:  input.Description,
	}
	if task.IsActive() {
		next, err := scheduler.NextRun(task.Schedule, nil, time.Now(), s.location)
		if err != nil {
			return nil, err
		}
		task.NextRunAt = &next
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("Task created",
		zap.String("task_id", task.ID.String()),
		zap.String("name", task.Name),
		zap.String("schedule_type", task.Schedule.Type))
	return task, nil
}

func (s *taskService) GetByID(ctx context.Context, id uuid.UUID) (*models.ExtractionTask, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *taskService) List(ctx context.Context) ([]*models.ExtractionTask, error) {
	return s.repo.List(ctx)
}

func (s *taskService) Update(ctx context.Context, id uuid.UUID, input TaskInput) (*models.ExtractionTask, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	task.Name = input.Name
	task.DataSourceID = input.DataSourceID
	task.Schedule = input.Schedule
	task.Description = input.Description
	if input.Status != "" {
		task.Status = input.Status
	}

	// Re-anchor the next due time: a disabled task has none, an active one
	// follows the (possibly changed) schedule from its last run.
	task.NextRunAt = nil
	if task.IsActive() {
		next, err := scheduler.NextRun(task.Schedule, task.LastRunAt, time.Now(), s.location)
		if err != nil {
			return nil, err
		}
		task.NextRunAt = &next
	}

	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("Task updated", zap.String("task_id", id.String()))
	return task, nil
}

func (s *taskService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Task deleted", zap.String("task_id", id.String()))
	return nil
}

func (s *taskService) Execute(ctx context.Context, id uuid.UUID) (*models.ExtractionRecord, error) {
	task, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	record, runErr := s.extractions.Extract(ctx, task.DataSourceID, &task.ID)
	if record == nil {
		return nil, runErr
	}

	// A manual run counts as a run: interval schedules re-anchor on it.
	now := time.Now()
	var nextRun *time.Time
	if task.IsActive() {
		if next, err := scheduler.NextRun(task.Schedule, &now, now, s.location); err == nil {
			nextRun = &next
		}
	}
	if err := s.repo.UpdateRunTimes(ctx, task.ID, now, nextRun); err != nil {
		s.logger.Error("Failed to update task run times",
			zap.String("task_id", task.ID.String()),
			zap.Error(err))
	}
	return record, runErr
}

func (s *taskService) validate(ctx context.Context, input TaskInput) error {
	if input.Name == "" {
		return fmt.Errorf("name is required: %w", apperrors.ErrValidation)
	}
	if input.DataSourceID == uuid.Nil {
		return fmt.Errorf("datasource_id is required: %w", apperrors.ErrValidation)
	}
	switch input.Status {
	case "", models.TaskStatusActive, models.TaskStatusDisabled:
	default:
		return fmt.Errorf("unknown status %q: %w", input.Status, apperrors.ErrValidation)
	}
	if err := scheduler.ValidateSchedule(input.Schedule); err != nil {
		return err
	}
	// The task must point at a datasource that actually exists.
	if _, err := s.datasources.GetByID(ctx, input.DataSourceID); err != nil {
		return err
	}
	return nil
}
