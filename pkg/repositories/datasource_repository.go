// Package repositories provides pgx-backed data access for the catalog.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/database"
	"github.com/metacat-dev/metacat/pkg/models"
)

// DatasourceRepository persists datasource registrations.
type DatasourceRepository interface {
	// Create inserts a datasource with its encrypted password.
	Create(ctx context.Context, ds *models.DataSource, encryptedPassword string) error

	// GetByID returns the datasource and its encrypted password.
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error)

	// GetByName returns the datasource with the given unique name.
	GetByName(ctx context.Context, name string) (*models.DataSource, string, error)

	// List returns all datasources ordered by name.
	List(ctx context.Context) ([]*models.DataSource, error)

	// Update modifies a datasource. An empty encryptedPassword keeps the
	// stored secret.
	Update(ctx context.Context, ds *models.DataSource, encryptedPassword string) error

	// Delete removes a datasource. The catalog rows, tasks and extraction
	// history for the source cascade with it; the deletion is not undoable.
	Delete(ctx context.Context, id uuid.UUID) error

	// Count returns the number of registered datasources.
	Count(ctx context.Context) (int, error)
}

type datasourceRepository struct {
	db *database.DB
}

// NewDatasourceRepository creates a DatasourceRepository.
func NewDatasourceRepository(db *database.DB) DatasourceRepository {
	return &datasourceRepository{db: db}
}

var _ DatasourceRepository = (*datasourceRepository)(nil)

func (r *datasourceRepository) Create(ctx context.Context, ds *models.DataSource, encryptedPassword string) error {
	const query = `
		INSERT INTO data_sources (name, type, host, port, username, encrypted_password, database_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		ds.Name, ds.Type, ds.Host, ds.Port, ds.Username, encryptedPassword, ds.Database,
	).Scan(&ds.ID, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("datasource name %q already exists: %w", ds.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create datasource: %w", err)
	}
	return nil
}

func (r *datasourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, error) {
	const query = `
		SELECT id, name, type, host, port, username, encrypted_password, database_name, created_at, updated_at
		FROM data_sources
		WHERE id = $1`

	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *datasourceRepository) GetByName(ctx context.Context, name string) (*models.DataSource, string, error) {
	const query = `
		SELECT id, name, type, host, port, username, encrypted_password, database_name, created_at, updated_at
		FROM data_sources
		WHERE name = $1`

	return r.scanOne(r.db.QueryRow(ctx, query, name))
}

func (r *datasourceRepository) scanOne(row pgx.Row) (*models.DataSource, string, error) {
	var ds models.DataSource
	var encrypted string
	err := row.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.Host, &ds.Port,
		&ds.Username, &encrypted, &ds.Database, &ds.CreatedAt, &ds.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", fmt.Errorf("datasource: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get datasource: %w", err)
	}
	return &ds, encrypted, nil
}

func (r *datasourceRepository) List(ctx context.Context) ([]*models.DataSource, error) {
	const query = `
		SELECT id, name, type, host, port, username, database_name, created_at, updated_at
		FROM data_sources
		ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasources: %w", err)
	}
	defer rows.Close()

	sources := make([]*models.DataSource, 0)
	for rows.Next() {
		var ds models.DataSource
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.Host, &ds.Port,
			&ds.Username, &ds.Database, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan datasource: %w", err)
		}
		sources = append(sources, &ds)
	}
	return sources, rows.Err()
}

func (r *datasourceRepository) Update(ctx context.Context, ds *models.DataSource, encryptedPassword string) error {
	const query = `
		UPDATE data_sources
		SET name = $2, type = $3, host = $4, port = $5, username = $6,
		    database_name = $7,
		    encrypted_password = CASE WHEN $8 = '' THEN encrypted_password ELSE $8 END,
		    updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		ds.ID, ds.Name, ds.Type, ds.Host, ds.Port, ds.Username, ds.Database, encryptedPassword)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("datasource name %q already exists: %w", ds.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update datasource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("datasource: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (r *datasourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete datasource: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("datasource: %w", apperrors.ErrNotFound)
	}
	return nil
}

func (r *datasourceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM data_sources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count datasources: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
