package models

import (
	"time"

	"github.com/google/uuid"
)

// TableMeta is the catalog's record of one table in a datasource.
// Version increments exactly once per committed extraction that changed any
// structural field. User comments are not versioned by extraction: they
// survive re-extraction unless the table itself disappears.
type TableMeta struct {
	ID           uuid.UUID    `json:"id"`
	DataSourceID uuid.UUID    `json:"datasource_id"`
	SchemaName   string       `json:"schema_name"`
	TableName    string       `json:"table_name"`
	RowCount     int64        `json:"row_count"`
	SizeBytes    int64        `json:"size_bytes"`
	Comment      *string      `json:"comment,omitempty"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Columns      []ColumnMeta `json:"columns,omitempty"` // populated on demand
}

// ColumnMeta is one column of a cataloged table. Unique per table on both
// column name and ordinal position.
type ColumnMeta struct {
	ID              uuid.UUID `json:"id"`
	TableID         uuid.UUID `json:"table_id"`
	ColumnName      string    `json:"column_name"`
	DataType        string    `json:"data_type"` // raw source type, e.g. VARCHAR(255)
	IsNullable      bool      `json:"is_nullable"`
	DefaultValue    *string   `json:"default_value,omitempty"`
	OrdinalPosition int       `json:"ordinal_position"`
	ColumnComment   *string   `json:"column_comment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Relationship is a constraint linking a column to a referenced table/column.
// Direction is derived, not stored: outgoing from the table holding the
// foreign key, incoming to the referenced table.
type Relationship struct {
	ID                   uuid.UUID `json:"id"`
	ConstraintName       string    `json:"constraint_name"`
	TableID              uuid.UUID `json:"table_id"`
	ColumnName           string    `json:"column_name"`
	ReferencedTableID    uuid.UUID `json:"referenced_table_id"`
	ReferencedColumnName string    `json:"referenced_column_name"`
	ConstraintType       string    `json:"constraint_type"`
	CreatedAt            time.Time `json:"created_at"`
}

// Relationship direction as seen from a given table.
const (
	RelationDirectionOutgoing = "outgoing"
	RelationDirectionIncoming = "incoming"
)

// RelatedTable is a relationship resolved against a specific table, with the
// peer table's name and the direction filled in.
type RelatedTable struct {
	Direction        string `json:"type"` // outgoing or incoming
	ConstraintName   string `json:"constraint_name"`
	ColumnName       string `json:"column_name"`
	RelatedTableName string `json:"related_table_name"`
	RelatedColumn    string `json:"related_column_name"`
	ConstraintType   string `json:"constraint_type"`
}
