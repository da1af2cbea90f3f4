package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/database"
	"github.com/metacat-dev/metacat/pkg/models"
)

// HistoryRepository is the append-only ledger of extraction runs. Records are
// never updated after reaching a terminal status and never deleted except by
// datasource cascade.
type HistoryRepository interface {
	// Append inserts a new record, normally in running status.
	Append(ctx context.Context, record *models.ExtractionRecord) error

	// Finalize moves a running record to a terminal status with its outcome.
	// Finalizing an already-terminal record is a conflict.
	Finalize(ctx context.Context, id uuid.UUID, status string, durationSeconds int64, extracted, total int, message string) error

	// Query returns one page of records matching the filter, newest first,
	// plus the total matching count.
	Query(ctx context.Context, filter models.HistoryFilter) ([]*models.ExtractionRecord, int, error)

	// Latest returns the most recently started record, or ErrNotFound when
	// the ledger is empty.
	Latest(ctx context.Context) (*models.ExtractionRecord, error)

	// FailStaleRunning marks every running record as failed and returns the
	// count. A running record at process start belongs to a previous process
	// that died mid-extraction; nothing will ever finalize it.
	FailStaleRunning(ctx context.Context, message string) (int, error)
}

type historyRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a HistoryRepository.
func NewHistoryRepository(db *database.DB) HistoryRepository {
	return &historyRepository{db: db}
}

var _ HistoryRepository = (*historyRepository)(nil)

func (r *historyRepository) Append(ctx context.Context, record *models.ExtractionRecord) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO extraction_history (datasource_id, task_id, started_at, status, extracted_table_count, total_table_count, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		record.DataSourceID, record.TaskID, record.StartedAt, record.Status,
		record.ExtractedTableCount, record.TotalTableCount, record.Message,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to append extraction record: %w", err)
	}
	return nil
}

func (r *historyRepository) Finalize(ctx context.Context, id uuid.UUID, status string, durationSeconds int64, extracted, total int, message string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE extraction_history
		SET status = $2, duration_seconds = $3, extracted_table_count = $4, total_table_count = $5, message = $6
		WHERE id = $1 AND status = $7`,
		id, status, durationSeconds, extracted, total, message, models.ExtractionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finalize extraction record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the record does not exist or it already reached a terminal
		// status. Distinguish for the caller.
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM extraction_history WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check extraction record: %w", err)
		}
		if !exists {
			return fmt.Errorf("extraction record: %w", apperrors.ErrNotFound)
		}
		return fmt.Errorf("extraction record already finalized: %w", apperrors.ErrConflict)
	}
	return nil
}

func (r *historyRepository) Query(ctx context.Context, filter models.HistoryFilter) ([]*models.ExtractionRecord, int, error) {
	where := "TRUE"
	args := []any{}
	if filter.DataSourceID != uuid.Nil {
		args = append(args, filter.DataSourceID)
		where += fmt.Sprintf(" AND datasource_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM extraction_history WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count extraction history: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	args = append(args, perPage, (page-1)*perPage)

	query := fmt.Sprintf(`
		SELECT id, datasource_id, task_id, started_at, duration_seconds, status, extracted_table_count, total_table_count, COALESCE(message, '')
		FROM extraction_history
		WHERE %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query extraction history: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ExtractionRecord, 0)
	for rows.Next() {
		rec, err := scanExtractionRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (r *historyRepository) Latest(ctx context.Context) (*models.ExtractionRecord, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, datasource_id, task_id, started_at, duration_seconds, status, extracted_table_count, total_table_count, COALESCE(message, '')
		FROM extraction_history
		ORDER BY started_at DESC
		LIMIT 1`)
	rec, err := scanExtractionRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("extraction record: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *historyRepository) FailStaleRunning(ctx context.Context, message string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE extraction_history
		SET status = $1, message = $2
		WHERE status = $3`,
		models.ExtractionStatusFailed, message, models.ExtractionStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stale extraction records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanExtractionRecord(row pgx.Row) (*models.ExtractionRecord, error) {
	var rec models.ExtractionRecord
	err := row.Scan(&rec.ID, &rec.DataSourceID, &rec.TaskID, &rec.StartedAt,
		&rec.DurationSeconds, &rec.Status, &rec.ExtractedTableCount,
		&rec.TotalTableCount, &rec.Message)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan extraction record: %w", err)
	}
	return &rec, nil
}
