package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/database"
	"github.com/metacat-dev/metacat/pkg/models"
)

// Table listing sort fields accepted by ListTables.
var validTableSortFields = map[string]bool{
	"table_name": true, "schema_name": true, "row_count": true,
	"size_bytes": true, "created_at": true, "updated_at": true,
}

// CatalogRepository persists the versioned table/column/relationship catalog.
type CatalogRepository interface {
	// CommitSnapshot atomically replaces the datasource's table set with a
	// fresh extraction, per the diff semantics of PlanSnapshot. Readers never
	// observe a partial table set.
	CommitSnapshot(ctx context.Context, datasourceID uuid.UUID, extracted []source.ExtractedTable) (*SnapshotResult, error)

	// GetTable returns one table with its columns ordered by position.
	GetTable(ctx context.Context, id uuid.UUID) (*models.TableMeta, error)

	// GetTableRelations returns the table's relationships, both directions,
	// with peer table names resolved.
	GetTableRelations(ctx context.Context, id uuid.UUID) ([]models.RelatedTable, error)

	// ListTables returns one sorted page of a datasource's tables plus the
	// total count.
	ListTables(ctx context.Context, datasourceID uuid.UUID, page, perPage int, sortBy, sortOrder string) ([]*models.TableMeta, int, error)

	// UpdateColumnComments applies a batch of column comment edits gated on
	// the owning table's version. A nil value deletes the comment. The batch
	// must target a single table and applies all-or-nothing.
	UpdateColumnComments(ctx context.Context, edits map[uuid.UUID]*string, expectedTableVersion int64) error

	// UpdateTableComment sets a table's comment, gated on its version.
	UpdateTableComment(ctx context.Context, tableID uuid.UUID, comment *string, expectedTableVersion int64) error

	// CountTables and CountColumns serve the overview aggregate.
	CountTables(ctx context.Context) (int, error)
	CountColumns(ctx context.Context) (int, error)

	// TableDistribution returns per-datasource table counts.
	TableDistribution(ctx context.Context) ([]models.DatasourceTableCount, error)
}

type catalogRepository struct {
	db *database.DB
}

// NewCatalogRepository creates a CatalogRepository.
func NewCatalogRepository(db *database.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

var _ CatalogRepository = (*catalogRepository)(nil)

// ============================================================================
// Snapshot commit
// ============================================================================

func (r *catalogRepository) CommitSnapshot(ctx context.Context, datasourceID uuid.UUID, extracted []source.ExtractedTable) (*SnapshotResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := loadExistingTables(ctx, tx, datasourceID)
	if err != nil {
		return nil, err
	}

	plan := PlanSnapshot(existing, extracted)
	result := &SnapshotResult{}

	// Removed tables first; their columns and relationships cascade.
	if len(plan.DeleteIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM table_metadata WHERE id = ANY($1)`, plan.DeleteIDs); err != nil {
			return nil, fmt.Errorf("failed to delete removed tables: %w", err)
		}
		result.TablesDeleted = len(plan.DeleteIDs)
	}

	// Relationships are rewritten wholesale from the extraction once the
	// table set settles.
	if _, err := tx.Exec(ctx, `
		DELETE FROM table_relationships
		WHERE table_id IN (SELECT id FROM table_metadata WHERE datasource_id = $1)`, datasourceID); err != nil {
		return nil, fmt.Errorf("failed to clear relationships: %w", err)
	}

	tableIDs := make(map[string]uuid.UUID, len(plan.Inserts)+len(plan.Updates))

	for _, ins := range plan.Inserts {
		var tableID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO table_metadata (datasource_id, schema_name, table_name, row_count, size_bytes, comment)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			datasourceID, ins.Extracted.SchemaName, ins.Extracted.TableName,
			ins.Extracted.RowCount, ins.Extracted.SizeBytes, ins.Extracted.Comment,
		).Scan(&tableID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert table %s.%s: %w", ins.Extracted.SchemaName, ins.Extracted.TableName, err)
		}
		tableIDs[tableKey(ins.Extracted.SchemaName, ins.Extracted.TableName)] = tableID
		result.TablesWritten++

		for _, col := range ins.Columns {
			if err := insertColumn(ctx, tx, tableID, col); err != nil {
				return nil, err
			}
			result.ColumnsWritten++
		}
	}

	for _, upd := range plan.Updates {
		bump := 0
		if upd.BumpVersion {
			bump = 1
			result.VersionsBumped++
		}
		if _, err := tx.Exec(ctx, `
			UPDATE table_metadata
			SET row_count = $2, size_bytes = $3, comment = $4,
			    version = version + $5, updated_at = now()
			WHERE id = $1`,
			upd.TableID, upd.Extracted.RowCount, upd.Extracted.SizeBytes, upd.Comment, bump); err != nil {
			return nil, fmt.Errorf("failed to update table %s: %w", upd.TableID, err)
		}
		tableIDs[tableKey(upd.Extracted.SchemaName, upd.Extracted.TableName)] = upd.TableID
		result.TablesWritten++

		if len(upd.DeleteColumnIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM column_metadata WHERE id = ANY($1)`, upd.DeleteColumnIDs); err != nil {
				return nil, fmt.Errorf("failed to delete removed columns: %w", err)
			}
		}

		for _, col := range upd.Columns {
			if col.ID == uuid.Nil {
				if err := insertColumn(ctx, tx, upd.TableID, col); err != nil {
					return nil, err
				}
			} else {
				if _, err := tx.Exec(ctx, `
					UPDATE column_metadata
					SET data_type = $2, is_nullable = $3, default_value = $4,
					    ordinal_position = $5, column_comment = $6, updated_at = now()
					WHERE id = $1`,
					col.ID, col.DataType, col.IsNullable, col.DefaultValue,
					col.OrdinalPosition, col.Comment); err != nil {
					return nil, fmt.Errorf("failed to update column %s: %w", col.ColumnName, err)
				}
			}
			result.ColumnsWritten++
		}
	}

	// Foreign keys resolving to tables outside the extracted set (filtered
	// or system tables) are skipped, matching the source-of-truth table set.
	for _, ext := range extracted {
		tableID, ok := tableIDs[tableKey(ext.SchemaName, ext.TableName)]
		if !ok {
			continue
		}
		for _, fk := range ext.ForeignKeys {
			refID, ok := tableIDs[tableKey(fk.ReferencedSchemaName, fk.ReferencedTableName)]
			if !ok {
				continue
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO table_relationships (constraint_name, table_id, column_name, referenced_table_id, referenced_column_name, constraint_type)
				VALUES ($1, $2, $3, $4, $5, 'FOREIGN KEY')`,
				fk.ConstraintName, tableID, fk.ColumnName, refID, fk.ReferencedColumnName); err != nil {
				return nil, fmt.Errorf("failed to insert relationship %s: %w", fk.ConstraintName, err)
			}
			result.RelationshipsWritten++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return result, nil
}

func insertColumn(ctx context.Context, tx pgx.Tx, tableID uuid.UUID, col ColumnWrite) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO column_metadata (table_id, column_name, data_type, is_nullable, default_value, ordinal_position, column_comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tableID, col.ColumnName, col.DataType, col.IsNullable,
		col.DefaultValue, col.OrdinalPosition, col.Comment); err != nil {
		return fmt.Errorf("failed to insert column %s: %w", col.ColumnName, err)
	}
	return nil
}

func loadExistingTables(ctx context.Context, tx pgx.Tx, datasourceID uuid.UUID) ([]ExistingTable, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, datasource_id, schema_name, table_name, row_count, size_bytes, comment, version, created_at, updated_at
		FROM table_metadata
		WHERE datasource_id = $1
		ORDER BY schema_name, table_name`, datasourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing tables: %w", err)
	}
	defer rows.Close()

	var tables []ExistingTable
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var t ExistingTable
		if err := rows.Scan(&t.Meta.ID, &t.Meta.DataSourceID, &t.Meta.SchemaName, &t.Meta.TableName,
			&t.Meta.RowCount, &t.Meta.SizeBytes, &t.Meta.Comment, &t.Meta.Version,
			&t.Meta.CreatedAt, &t.Meta.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan existing table: %w", err)
		}
		index[t.Meta.ID] = len(tables)
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	colRows, err := tx.Query(ctx, `
		SELECT c.id, c.table_id, c.column_name, c.data_type, c.is_nullable, c.default_value, c.ordinal_position, c.column_comment, c.created_at, c.updated_at
		FROM column_metadata c
		JOIN table_metadata t ON t.id = c.table_id
		WHERE t.datasource_id = $1
		ORDER BY c.table_id, c.ordinal_position`, datasourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		var c models.ColumnMeta
		if err := colRows.Scan(&c.ID, &c.TableID, &c.ColumnName, &c.DataType, &c.IsNullable,
			&c.DefaultValue, &c.OrdinalPosition, &c.ColumnComment, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan existing column: %w", err)
		}
		if i, ok := index[c.TableID]; ok {
			tables[i].Columns = append(tables[i].Columns, c)
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, err
	}
	colRows.Close()

	relRows, err := tx.Query(ctx, `
		SELECT r.table_id, r.constraint_name, r.column_name, rt.schema_name, rt.table_name, r.referenced_column_name
		FROM table_relationships r
		JOIN table_metadata t ON t.id = r.table_id
		JOIN table_metadata rt ON rt.id = r.referenced_table_id
		WHERE t.datasource_id = $1`, datasourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing relationships: %w", err)
	}
	defer relRows.Close()

	for relRows.Next() {
		var tableID uuid.UUID
		var fk ExistingForeignKey
		if err := relRows.Scan(&tableID, &fk.ConstraintName, &fk.ColumnName,
			&fk.ReferencedSchemaName, &fk.ReferencedTableName, &fk.ReferencedColumnName); err != nil {
			return nil, fmt.Errorf("failed to scan existing relationship: %w", err)
		}
		if i, ok := index[tableID]; ok {
			tables[i].ForeignKeys = append(tables[i].ForeignKeys, fk)
		}
	}
	return tables, relRows.Err()
}

// ============================================================================
// Reads
// ============================================================================

func (r *catalogRepository) GetTable(ctx context.Context, id uuid.UUID) (*models.TableMeta, error) {
	var t models.TableMeta
	err := r.db.QueryRow(ctx, `
		SELECT id, datasource_id, schema_name, table_name, row_count, size_bytes, comment, version, created_at, updated_at
		FROM table_metadata
		WHERE id = $1`, id,
	).Scan(&t.ID, &t.DataSourceID, &t.SchemaName, &t.TableName, &t.RowCount,
		&t.SizeBytes, &t.Comment, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("table: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, table_id, column_name, data_type, is_nullable, default_value, ordinal_position, column_comment, created_at, updated_at
		FROM column_metadata
		WHERE table_id = $1
		ORDER BY ordinal_position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.ColumnMeta
		if err := rows.Scan(&c.ID, &c.TableID, &c.ColumnName, &c.DataType, &c.IsNullable,
			&c.DefaultValue, &c.OrdinalPosition, &c.ColumnComment, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		t.Columns = append(t.Columns, c)
	}
	return &t, rows.Err()
}

func (r *catalogRepository) GetTableRelations(ctx context.Context, id uuid.UUID) ([]models.RelatedTable, error) {
	rows, err := r.db.Query(ctx, `
		SELECT
			CASE WHEN r.table_id = $1 THEN 'outgoing' ELSE 'incoming' END,
			COALESCE(r.constraint_name, ''),
			r.column_name,
			CASE WHEN r.table_id = $1 THEN rt.table_name ELSE t.table_name END,
			r.referenced_column_name,
			r.constraint_type
		FROM table_relationships r
		JOIN table_metadata t ON t.id = r.table_id
		JOIN table_metadata rt ON rt.id = r.referenced_table_id
		WHERE r.table_id = $1 OR r.referenced_table_id = $1
		ORDER BY r.constraint_name`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	relations := make([]models.RelatedTable, 0)
	for rows.Next() {
		var rel models.RelatedTable
		if err := rows.Scan(&rel.Direction, &rel.ConstraintName, &rel.ColumnName,
			&rel.RelatedTableName, &rel.RelatedColumn, &rel.ConstraintType); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}

func (r *catalogRepository) ListTables(ctx context.Context, datasourceID uuid.UUID, page, perPage int, sortBy, sortOrder string) ([]*models.TableMeta, int, error) {
	if !validTableSortFields[sortBy] {
		sortBy = "table_name"
	}
	if sortOrder != "desc" {
		sortOrder = "asc"
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM table_metadata WHERE datasource_id = $1`, datasourceID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tables: %w", err)
	}

	// sortBy/sortOrder are validated against fixed allow-lists above.
	query := fmt.Sprintf(`
		SELECT id, datasource_id, schema_name, table_name, row_count, size_bytes, comment, version, created_at, updated_at
		FROM table_metadata
		WHERE datasource_id = $1
		ORDER BY %s %s
		LIMIT $2 OFFSET $3`, sortBy, sortOrder)

	rows, err := r.db.Query(ctx, query, datasourceID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]*models.TableMeta, 0)
	for rows.Next() {
		var t models.TableMeta
		if err := rows.Scan(&t.ID, &t.DataSourceID, &t.SchemaName, &t.TableName, &t.RowCount,
			&t.SizeBytes, &t.Comment, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, &t)
	}
	return tables, total, rows.Err()
}

// ============================================================================
// Annotations
// ============================================================================

func (r *catalogRepository) UpdateColumnComments(ctx context.Context, edits map[uuid.UUID]*string, expectedTableVersion int64) error {
	if len(edits) == 0 {
		return fmt.Errorf("no comment edits supplied: %w", apperrors.ErrValidation)
	}

	ids := make([]uuid.UUID, 0, len(edits))
	for id := range edits {
		ids = append(ids, id)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin comment transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id, table_id FROM column_metadata WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to resolve columns: %w", err)
	}
	tableIDs := make(map[uuid.UUID]bool)
	found := 0
	for rows.Next() {
		var colID, tableID uuid.UUID
		if err := rows.Scan(&colID, &tableID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan column owner: %w", err)
		}
		tableIDs[tableID] = true
		found++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	if found != len(ids) {
		return fmt.Errorf("column: %w", apperrors.ErrNotFound)
	}
	if len(tableIDs) > 1 {
		return apperrors.ErrCrossTableBatch
	}

	var tableID uuid.UUID
	for id := range tableIDs {
		tableID = id
	}

	if err := checkTableVersion(ctx, tx, tableID, expectedTableVersion); err != nil {
		return err
	}

	for colID, comment := range edits {
		if _, err := tx.Exec(ctx, `
			UPDATE column_metadata SET column_comment = $2, updated_at = now() WHERE id = $1`,
			colID, comment); err != nil {
			return fmt.Errorf("failed to update column comment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit comment edits: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpdateTableComment(ctx context.Context, tableID uuid.UUID, comment *string, expectedTableVersion int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin comment transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := checkTableVersion(ctx, tx, tableID, expectedTableVersion); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE table_metadata SET comment = $2, updated_at = now() WHERE id = $1`,
		tableID, comment); err != nil {
		return fmt.Errorf("failed to update table comment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit comment edit: %w", err)
	}
	return nil
}

// checkTableVersion locks the table row and compares its version against the
// caller's expectation. The lock holds until the transaction ends so a
// concurrent snapshot commit cannot slip between check and write.
func checkTableVersion(ctx context.Context, tx pgx.Tx, tableID uuid.UUID, expected int64) error {
	var current int64
	err := tx.QueryRow(ctx,
		`SELECT version FROM table_metadata WHERE id = $1 FOR UPDATE`, tableID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("table: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read table version: %w", err)
	}
	if current != expected {
		return fmt.Errorf("expected version %d, current %d: %w", expected, current, apperrors.ErrVersionConflict)
	}
	return nil
}

// ============================================================================
// Overview
// ============================================================================

func (r *catalogRepository) CountTables(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM table_metadata`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tables: %w", err)
	}
	return count, nil
}

func (r *catalogRepository) CountColumns(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM column_metadata`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count columns: %w", err)
	}
	return count, nil
}

func (r *catalogRepository) TableDistribution(ctx context.Context) ([]models.DatasourceTableCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ds.id, ds.name, ds.type, COUNT(t.id)
		FROM data_sources ds
		LEFT JOIN table_metadata t ON t.datasource_id = ds.id
		GROUP BY ds.id, ds.name, ds.type
		ORDER BY ds.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query table distribution: %w", err)
	}
	defer rows.Close()

	dist := make([]models.DatasourceTableCount, 0)
	for rows.Next() {
		var d models.DatasourceTableCount
		if err := rows.Scan(&d.DataSourceID, &d.Name, &d.Type, &d.TableCount); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		dist = append(dist, d)
	}
	return dist, rows.Err()
}
