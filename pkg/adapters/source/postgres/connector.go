// Package postgres implements the source connector for PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
)

func init() {
	source.Register(source.DriverRegistration{
		Info: source.DriverInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
		},
		Factory: New,
	})
}

// Connector reads schema metadata from a PostgreSQL datasource.
type Connector struct {
	pool *pgxpool.Pool
	cfg  source.ConnConfig
}

// New opens a connector. The pool connects lazily; TestConnection performs
// the first round trip.
func New(ctx context.Context, cfg source.ConnConfig) (source.Connector, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?connect_timeout=%d",
		url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Database,
		int(cfg.EffectiveTimeout().Seconds()))

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, source.Classify(err)
	}
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, source.Classify(err)
	}

	return &Connector{pool: pool, cfg: cfg}, nil
}

// TestConnection pings the source within the configured timeout.
func (c *Connector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return source.Classify(err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Connector) Close() error {
	c.pool.Close()
	return nil
}

// ListSchema enumerates user tables with columns and foreign keys.
// System schemas (pg_catalog, information_schema, pg_toast) are excluded.
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
	const query = `
		SELECT
			n.nspname,
			c.relname,
			GREATEST(c.reltuples::bigint, 0),
			pg_total_relation_size(c.oid),
			obj_description(c.oid, 'pg_class')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r'
		  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY n.nspname, c.relname`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
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
	const query = `
		SELECT
			col.table_schema,
			col.table_name,
			col.column_name,
			CASE
				WHEN col.character_maximum_length IS NOT NULL
					THEN col.udt_name || '(' || col.character_maximum_length || ')'
				ELSE col.udt_name
			END,
			col.is_nullable = 'YES',
			col.column_default,
			col.ordinal_position,
			col_description(cls.oid, col.ordinal_position)
		FROM information_schema.columns col
		JOIN pg_class cls ON cls.relname = col.table_name
		JOIN pg_namespace ns ON ns.oid = cls.relnamespace AND ns.nspname = col.table_schema
		WHERE col.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY col.table_schema, col.table_name, col.ordinal_position`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
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
	const query = `
		SELECT
			tc.table_schema,
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		ORDER BY tc.table_schema, tc.table_name, tc.constraint_name`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
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
