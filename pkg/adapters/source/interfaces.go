// Package source defines the capability interfaces for reading schema
// metadata out of external datasources, plus a registry of per-type drivers.
package source

import (
	"context"
	"time"
)

// ConnConfig carries resolved connection settings for one datasource.
// The password is resolved just-in-time by the caller and must never be
// logged.
type ConnConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string

	// Timeout caps each connect/query. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout is the design-default connect/query timeout.
const DefaultTimeout = 30 * time.Second

// EffectiveTimeout returns the configured timeout or the default.
func (c *ConnConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// systemSchemas are the engine-internal schemas no connector should surface.
// Connectors filter in SQL where they can; this is the shared reference list
// for the pipeline's second pass.
var systemSchemas = map[string]bool{
	"pg_catalog":         true,
	"pg_toast":           true,
	"information_schema": true,
	"mysql":              true,
	"sys":                true,
	"performance_schema": true,
}

// IsSystemSchema reports whether schema belongs to the source engine itself.
func IsSystemSchema(schema string) bool {
	return systemSchemas[schema]
}

// ExtractedColumn is one column as read from the source.
type ExtractedColumn struct {
	ColumnName      string
	DataType        string // raw source type, e.g. VARCHAR(255)
	IsNullable      bool
	DefaultValue    *string
	OrdinalPosition int
	Comment         *string
}

// ExtractedForeignKey links a column of the owning table to a referenced
// table/column in the same source.
type ExtractedForeignKey struct {
	ConstraintName       string
	ColumnName           string
	ReferencedSchemaName string
	ReferencedTableName  string
	ReferencedColumnName string
}

// ExtractedTable is one table with its columns and outgoing foreign keys as
// enumerated by a connector.
type ExtractedTable struct {
	SchemaName  string
	TableName   string
	Comment     *string
	RowCount    int64
	SizeBytes   int64
	Columns     []ExtractedColumn
	ForeignKeys []ExtractedForeignKey
}

// ConnectionTester verifies connectivity with the stored credentials.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection returns nil if the source is reachable with valid
	// credentials, a classified *ConnectorError otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// SchemaReader enumerates the source's user tables with columns and foreign
// keys. System schemas are excluded by each implementation.
type SchemaReader interface {
	// ListSchema reads all user tables in one pass.
	ListSchema(ctx context.Context) ([]ExtractedTable, error)

	// Close releases the connection.
	Close() error
}

// Connector combines both capabilities over one connection.
type Connector interface {
	ConnectionTester
	SchemaReader
}
