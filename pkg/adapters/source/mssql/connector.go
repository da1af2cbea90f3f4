// Package mssql implements the source connector for Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
)

func init() {
	source.Register(source.DriverRegistration{
		Info:    source.DriverInfo{Type: "sqlserver", DisplayName: "Microsoft SQL Server"},
		Factory: New,
	})
}

// Connector reads schema metadata from a SQL Server datasource.
type Connector struct {
	db  *sql.DB
	cfg source.ConnConfig
}

// New opens a connector.
func New(ctx context.Context, cfg source.ConnConfig) (source.Connector, error) {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("dial timeout", fmt.Sprintf("%d", int(cfg.EffectiveTimeout().Seconds())))
	u.RawQuery = q.Encode()

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, source.Classify(err)
	}
	db.SetMaxOpenConns(2)

	return &Connector{db: db, cfg: cfg}, nil
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

// ListSchema enumerates user tables with columns and foreign keys. The sys
// and INFORMATION_SCHEMA schemas are excluded.
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
		key := t.SchemaName + "." + t.TableName
		t.Columns = columns[key]
		t.ForeignKeys = fks[key]
		result = append(result, t)
	}
	return result, nil
}

func (c *Connector) listTables(ctx context.Context) ([]source.ExtractedTable, error) {
	const q = `
		SELECT
			s.name,
			t.name,
			COALESCE(p.rows, 0),
			COALESCE(a.total_bytes, 0),
			CAST(ep.value AS NVARCHAR(MAX))
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		LEFT JOIN (
			SELECT object_id, SUM(rows) AS rows
			FROM sys.partitions WHERE index_id IN (0, 1) GROUP BY object_id
		) p ON p.object_id = t.object_id
		LEFT JOIN (
			SELECT p2.object_id, SUM(au.total_pages) * 8192 AS total_bytes
			FROM sys.partitions p2
			JOIN sys.allocation_units au ON au.container_id = p2.partition_id
			GROUP BY p2.object_id
		) a ON a.object_id = t.object_id
		LEFT JOIN sys.extended_properties ep
			ON ep.major_id = t.object_id AND ep.minor_id = 0 AND ep.name = 'MS_Description'
		WHERE t.is_ms_shipped = 0
		ORDER BY s.name, t.name`

	rows, err := c.db.QueryContext(ctx, q)
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
			c.TABLE_SCHEMA,
			c.TABLE_NAME,
			c.COLUMN_NAME,
			CASE
				WHEN c.CHARACTER_MAXIMUM_LENGTH IS NOT NULL AND c.CHARACTER_MAXIMUM_LENGTH > 0
					THEN c.DATA_TYPE + '(' + CAST(c.CHARACTER_MAXIMUM_LENGTH AS VARCHAR(12)) + ')'
				ELSE c.DATA_TYPE
			END,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			c.COLUMN_DEFAULT,
			c.ORDINAL_POSITION,
			CAST(ep.value AS NVARCHAR(MAX))
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN sys.tables t ON t.name = c.TABLE_NAME
		JOIN sys.schemas s ON s.schema_id = t.schema_id AND s.name = c.TABLE_SCHEMA
		JOIN sys.columns sc ON sc.object_id = t.object_id AND sc.name = c.COLUMN_NAME
		LEFT JOIN sys.extended_properties ep
			ON ep.major_id = t.object_id AND ep.minor_id = sc.column_id AND ep.name = 'MS_Description'
		WHERE t.is_ms_shipped = 0
		ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	columns := make(map[string][]source.ExtractedColumn)
	for rows.Next() {
		var schema, table string
		var col source.ExtractedColumn
		if err := rows.Scan(&schema, &table, &col.ColumnName, &col.DataType,
			&col.IsNullable, &col.DefaultValue, &col.OrdinalPosition, &col.Comment); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		key := schema + "." + table
		columns[key] = append(columns[key], col)
	}
	return columns, rows.Err()
}

func (c *Connector) listForeignKeys(ctx context.Context) (map[string][]source.ExtractedForeignKey, error) {
	const q = `
		SELECT
			sp.name,
			tp.name,
			fk.name,
			cp.name,
			sr.name,
			tr.name,
			cr.name
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.tables tp ON tp.object_id = fkc.parent_object_id
		JOIN sys.schemas sp ON sp.schema_id = tp.schema_id
		JOIN sys.columns cp ON cp.object_id = fkc.parent_object_id AND cp.column_id = fkc.parent_column_id
		JOIN sys.tables tr ON tr.object_id = fkc.referenced_object_id
		JOIN sys.schemas sr ON sr.schema_id = tr.schema_id
		JOIN sys.columns cr ON cr.object_id = fkc.referenced_object_id AND cr.column_id = fkc.referenced_column_id
		ORDER BY sp.name, tp.name, fk.name`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer rows.Close()

	fks := make(map[string][]source.ExtractedForeignKey)
	for rows.Next() {
		var schema, table string
		var fk source.ExtractedForeignKey
		if err := rows.Scan(&schema, &table, &fk.ConstraintName, &fk.ColumnName,
			&fk.ReferencedSchemaName, &fk.ReferencedTableName, &fk.ReferencedColumnName); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		key := schema + "." + table
		fks[key] = append(fks[key], fk)
	}
	return fks, rows.Err()
}

var _ source.Connector = (*Connector)(nil)
