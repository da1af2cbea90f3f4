// Package mysql implements the source connector for MySQL and MySQL-protocol
// compatibles (StarRocks).
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
)

func init() {
	source.Register(source.DriverRegistration{
		Info:    source.DriverInfo{Type: "mysql", DisplayName: "MySQL"},
		Factory: New,
	})
	// StarRocks speaks the MySQL wire protocol.
	source.Register(source.DriverRegistration{
		Info:    source.DriverInfo{Type: "starrocks", DisplayName: "StarRocks"},
		Factory: New,
	})
}

// Connector reads schema metadata from a MySQL datasource. Only the
// configured database (schema) is enumerated; system schemas are never
// reachable this way.
type Connector struct {
	db       *sql.DB
	database string
	cfg      source.ConnConfig
}

// New opens a connector.
func New(ctx context.Context, cfg source.ConnConfig) (source.Connector, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Database
	mc.Timeout = cfg.EffectiveTimeout()
	mc.ReadTimeout = cfg.EffectiveTimeout()
	mc.ParseTime = true

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, source.Classify(err)
	}
	db.SetMaxOpenConns(2)

	return &Connector{db: db, database: cfg.Database, cfg: cfg}, nil
}

// TestConnection pings the source within the configured timeout.
func (c *Connector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return source.Classify(err)
	}
	return nil
}

// Close releases the connection.
func (c *Connector) Close() error {
	return c.db.Close()
}

// ListSchema enumerates base tables of the configured database with columns
// and foreign keys.
func (c *Connector) ListSchema(ctx context.Context) ([]source.ExtractedTable, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	tables, err := c.listTables(ctx)
	if err != nil {
		return nil, source.Classify(err)
	}

	columns, err := c.listColumns(ctx)
	if err != nil {
		return nil, source.Classify(err)
	}

	fks, err := c.listForeignKeys(ctx)
	if err != nil {
		return nil, source.Classify(err)
	}

	result := make([]source.ExtractedTable, 0, len(tables))
	for _, t := range tables {
		t.Columns = columns[t.TableName]
		t.ForeignKeys = fks[t.TableName]
		result = append(result, t)
	}
	return result, nil
}

func (c *Connector) listTables(ctx context.Context) ([]source.ExtractedTable, error) {
	const q = `
		SELECT
			table_schema,
			table_name,
			COALESCE(table_rows, 0),
			COALESCE(data_length, 0) + COALESCE(index_length, 0),
			NULLIF(table_comment, '')
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.db.QueryContext(ctx, q, c.database)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []source.ExtractedTable
	for rows.Next() {
		var t source.ExtractedTable
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.RowCount, &t.SizeBytes, &t.Comment); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (c *Connector) listColumns(ctx context.Context) (map[string][]source.ExtractedColumn, error) {
	const q = `
		SELECT
			table_name,
			column_name,
			column_type,
			is_nullable = 'YES',
			column_default,
			ordinal_position,
			NULLIF(column_comment, '')
		FROM information_schema.columns
		WHERE table_schema = ?
		ORDER BY table_name, ordinal_position`

	rows, err := c.db.QueryContext(ctx, q, c.database)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]source.ExtractedColumn)
	for rows.Next() {
		var table string
		var col source.ExtractedColumn
		if err := rows.Scan(&table, &col.ColumnName, &col.DataType, &col.IsNullable,
			&col.DefaultValue, &col.OrdinalPosition, &col.Comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns[table] = append(columns[table], col)
	}
	return columns, rows.Err()
}

func (c *Connector) listForeignKeys(ctx context.Context) (map[string][]source.ExtractedForeignKey, error) {
	const q = `
		SELECT
			kcu.table_name,
			kcu.constraint_name,
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name
		FROM information_schema.key_column_usage kcu
		WHERE kcu.table_schema = ?
		  AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.table_name, kcu.constraint_name`

	rows, err := c.db.QueryContext(ctx, q, c.database)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[string][]source.ExtractedForeignKey)
	for rows.Next() {
		var table string
		var fk source.ExtractedForeignKey
		if err := rows.Scan(&table, &fk.ConstraintName, &fk.ColumnName,
			&fk.ReferencedTableName, &fk.ReferencedColumnName); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		// MySQL FKs cannot cross databases here; referenced schema is ours.
		fk.ReferencedSchemaName = c.database
		fks[table] = append(fks[table], fk)
	}
	return fks, rows.Err()
}

var _ source.Connector = (*Connector)(nil)
