package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/database"
	"github.com/metacat-dev/metacat/pkg/models"
)

// TaskRepository persists scheduled extraction tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.ExtractionTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExtractionTask, error)
	List(ctx context.Context) ([]*models.ExtractionTask, error)
	Update(ctx context.Context, task *models.ExtractionTask) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ListDue returns active tasks whose next_run_at is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*models.ExtractionTask, error)

	// UpdateRunTimes records a run and the next due time in one write.
	UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error

	// Reschedule moves the next due time without recording a run, used when
	// a due task is skipped because its datasource is already extracting.
	Reschedule(ctx context.Context, id uuid.UUID, nextRun *time.Time) error

	Count(ctx context.Context) (int, error)
}

type taskRepository struct {
	db *database.DB
}

// NewTaskRepository creates a TaskRepository.
func NewTaskRepository(db *database.DB) TaskRepository {
	return &taskRepository{db: db}
}

var _ TaskRepository = (*taskRepository)(nil)

const taskColumns = `id, name, datasource_id, schedule_type, interval_value, interval_unit, cron_expression, status, COALESCE(description, ''), last_run_at, next_run_at, created_at, updated_at`

func (r *taskRepository) Create(ctx context.Context, task *models.ExtractionTask) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO etl_tasks (name, datasource_id, schedule_type, interval_value, interval_unit, cron_expression, status, description, next_run_at)
		VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		task.Name, task.DataSourceID, task.Schedule.Type, task.Schedule.IntervalValue,
		task.Schedule.IntervalUnit, task.Schedule.CronExpression, task.Status,
		task.Description, task.NextRunAt,
	).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExtractionTask, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM etl_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) List(ctx context.Context) ([]*models.ExtractionTask, error) {
	rows, err := r.db.Query(ctx, `SELECT `+taskColumns+` FROM etl_tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepository) Update(ctx context.Context, task *models.ExtractionTask) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE etl_tasks
		SET name = $2, datasource_id = $3, schedule_type = $4,
		    interval_value = NULLIF($5, 0), interval_unit = NULLIF($6, ''),
		    cron_expression = NULLIF($7, ''), status = $8, description = $9,
		    next_run_at = $10, updated_at = now()
		WHERE id = $1`,
		task.ID, task.Name, task.DataSourceID, task.Schedule.Type,
		task.Schedule.IntervalValue, task.Schedule.IntervalUnit,
		task.Schedule.CronExpression, task.Status, task.Description, task.NextRunAt)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM etl_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (r *taskRepository) ListDue(ctx context.Context, now time.Time) ([]*models.ExtractionTask, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM etl_tasks
		WHERE status = $1 AND next_run_at IS NOT NULL AND next_run_at <= $2
		ORDER BY next_run_at`, models.TaskStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *taskRepository) UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE etl_tasks SET last_run_at = $2, next_run_at = $3, updated_at = now() WHERE id = $1`,
		id, lastRun, nextRun)
	if err != nil {
		return fmt.Errorf("failed to update task run times: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (r *taskRepository) Reschedule(ctx context.Context, id uuid.UUID, nextRun *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE etl_tasks SET next_run_at = $2, updated_at = now() WHERE id = $1`,
		id, nextRun)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (r *taskRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM etl_tasks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

func scanTask(row pgx.Row) (*models.ExtractionTask, error) {
	var task models.ExtractionTask
	var intervalValue *int
	var intervalUnit, cronExpression *string
	err := row.Scan(&task.ID, &task.Name, &task.DataSourceID, &task.Schedule.Type,
		&intervalValue, &intervalUnit, &cronExpression, &task.Status,
		&task.Description, &task.LastRunAt, &task.NextRunAt,
		&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	if intervalValue != nil {
		task.Schedule.IntervalValue = *intervalValue
	}
	if intervalUnit != nil {
		task.Schedule.IntervalUnit = *intervalUnit
	}
	if cronExpression != nil {
		task.Schedule.CronExpression = *cronExpression
	}
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]*models.ExtractionTask, error) {
	tasks := make([]*models.ExtractionTask, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
