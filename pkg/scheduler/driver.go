package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
)

// TaskStore is the scheduler's view of task persistence.
type TaskStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*models.ExtractionTask, error)
	UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error
	Reschedule(ctx context.Context, id uuid.UUID, nextRun *time.Time) error
}

// Runner triggers an extraction on behalf of a task.
type Runner interface {
	Extract(ctx context.Context, datasourceID uuid.UUID, taskID *uuid.UUID) (*models.ExtractionRecord, error)
}

// Options tune the driver loop.
type Options struct {
	// Tick is the poll interval. Due tasks start at most one tick late.
	Tick time.Duration

	// MaxConcurrent bounds simultaneous extractions across all tasks.
	MaxConcurrent int64

	// Location is the timezone cron expressions evaluate in.
	Location *time.Location
}

// Driver polls for due tasks and dispatches their extractions. It tolerates
// restarts without duplicate work: due-ness lives in the database, not in
// memory.
type Driver struct {
	store  TaskStore
	runner Runner
	opts   Options
	sem    *semaphore.Weighted
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDriver creates a scheduler driver.
func NewDriver(store TaskStore, runner Runner, opts Options, logger *zap.Logger) *Driver {
	if opts.Tick <= 0 || opts.Tick > time.Minute {
		opts.Tick = time.Minute
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Driver{
		store:  store,
		runner: runner,
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
		logger: logger.Named("scheduler"),
	}
}

// Start launches the poll loop. Stop with Stop.
func (d *Driver) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Info("Scheduler started",
		zap.Duration("tick", d.opts.Tick),
		zap.Int64("max_concurrent", d.opts.MaxConcurrent))
}

// Stop halts polling and waits for in-flight dispatches to finish.
func (d *Driver) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("Scheduler stopped")
}

func (d *Driver) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.dispatchDue(ctx, now)
		}
	}
}

func (d *Driver) dispatchDue(ctx context.Context, now time.Time) {
	due, err := d.store.ListDue(ctx, now)
	if err != nil {
		d.logger.Error("Failed to list due tasks", zap.Error(err))
		return
	}

	for _, task := range due {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.runTask(ctx, task, now)
		}()
	}
}

func (d *Driver) runTask(ctx context.Context, task *models.ExtractionTask, now time.Time) {
	startedAt := time.Now()
	_, err := d.runner.Extract(ctx, task.DataSourceID, &task.ID)

	if errors.Is(err, apperrors.ErrExtractionRunning) {
		// Another run for this datasource is still going. Skip this slot and
		// push the task to its next due time so it doesn't re-fire every tick.
		d.logger.Warn("Skipping due task, extraction already running",
			zap.String("task_id", task.ID.String()),
			zap.String("datasource_id", task.DataSourceID.String()))
		next, nerr := NextRun(task.Schedule, &startedAt, now, d.opts.Location)
		if nerr != nil {
			d.logger.Error("Failed to compute next run", zap.String("task_id", task.ID.String()), zap.Error(nerr))
			return
		}
		if rerr := d.store.Reschedule(ctx, task.ID, &next); rerr != nil {
			d.logger.Error("Failed to reschedule task", zap.String("task_id", task.ID.String()), zap.Error(rerr))
		}
		return
	}

	if err != nil {
		// The run failed but it happened; the ledger holds the details.
		d.logger.Error("Scheduled extraction failed",
			zap.String("task_id", task.ID.String()),
			zap.String("datasource_id", task.DataSourceID.String()),
			zap.Error(err))
	}

	next, nerr := NextRun(task.Schedule, &startedAt, time.Now(), d.opts.Location)
	if nerr != nil {
		d.logger.Error("Failed to compute next run", zap.String("task_id", task.ID.String()), zap.Error(nerr))
		return
	}
	if uerr := d.store.UpdateRunTimes(ctx, task.ID, startedAt, &next); uerr != nil {
		d.logger.Error("Failed to update task run times",
			zap.String("task_id", task.ID.String()),
			zap.Error(uerr))
	}
}
