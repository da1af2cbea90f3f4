package repositories

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/models"
)

// ExistingForeignKey is a cataloged relationship resolved to source-side
// names so it can be compared against a fresh extraction.
type ExistingForeignKey struct {
	ConstraintName       string
	ColumnName           string
	ReferencedSchemaName string
	ReferencedTableName  string
	ReferencedColumnName string
}

// ExistingTable is the catalog's current view of one table, loaded for
// snapshot planning.
type ExistingTable struct {
	Meta        models.TableMeta
	Columns     []models.ColumnMeta
	ForeignKeys []ExistingForeignKey
}

// ColumnWrite is one column to store, with any preserved user comment
// already resolved.
type ColumnWrite struct {
	// ID is the preserved column id for survivors, uuid.Nil for new columns.
	ID              uuid.UUID
	ColumnName      string
	DataType        string
	IsNullable      bool
	DefaultValue    *string
	OrdinalPosition int
	Comment         *string
}

// TableInsert is a table absent from the catalog before this extraction.
type TableInsert struct {
	Extracted source.ExtractedTable
	Columns   []ColumnWrite
}

// TableUpdate is a surviving table: IDs and user comments are kept, version
// bumps only when a structural field changed.
type TableUpdate struct {
	TableID     uuid.UUID
	Extracted   source.ExtractedTable
	BumpVersion bool
	Comment     *string // resolved table comment to store
	Columns     []ColumnWrite
	// DeleteColumnIDs are columns gone from the source.
	DeleteColumnIDs []uuid.UUID
}

// SnapshotPlan is the full set of writes for one atomic snapshot commit.
type SnapshotPlan struct {
	Inserts   []TableInsert
	Updates   []TableUpdate
	DeleteIDs []uuid.UUID
}

// SnapshotResult summarizes a committed snapshot.
type SnapshotResult struct {
	TablesWritten        int `json:"tables_written"`
	TablesDeleted        int `json:"tables_deleted"`
	ColumnsWritten       int `json:"columns_written"`
	RelationshipsWritten int `json:"relationships_written"`
	VersionsBumped       int `json:"versions_bumped"`
}

// PlanSnapshot diffs a fresh extraction against the catalog's current state
// for one datasource. Extraction is authoritative over structure: tables and
// columns absent from the extraction are deleted (their comments are lost).
// Survivors keep their IDs and user comments; version bumps once iff any
// structural field (column type/nullability/default/position set, foreign
// key set, row_count, size_bytes) changed.
func PlanSnapshot(existing []ExistingTable, extracted []source.ExtractedTable) SnapshotPlan {
	byKey := make(map[string]*ExistingTable, len(existing))
	for i := range existing {
		t := &existing[i]
		byKey[tableKey(t.Meta.SchemaName, t.Meta.TableName)] = t
	}

	var plan SnapshotPlan
	seen := make(map[string]bool, len(extracted))

	for _, ext := range extracted {
		key := tableKey(ext.SchemaName, ext.TableName)
		seen[key] = true

		old, ok := byKey[key]
		if !ok {
			plan.Inserts = append(plan.Inserts, TableInsert{
				Extracted: ext,
				Columns:   newColumns(ext.Columns),
			})
			continue
		}

		update := TableUpdate{
			TableID:   old.Meta.ID,
			Extracted: ext,
			Comment:   resolveComment(old.Meta.Comment, ext.Comment),
		}

		oldByName := make(map[string]*models.ColumnMeta, len(old.Columns))
		for i := range old.Columns {
			oldByName[old.Columns[i].ColumnName] = &old.Columns[i]
		}

		structuralChange := old.Meta.RowCount != ext.RowCount ||
			old.Meta.SizeBytes != ext.SizeBytes

		extNames := make(map[string]bool, len(ext.Columns))
		for _, ec := range ext.Columns {
			extNames[ec.ColumnName] = true
			write := ColumnWrite{
				ColumnName:      ec.ColumnName,
				DataType:        ec.DataType,
				IsNullable:      ec.IsNullable,
				DefaultValue:    ec.DefaultValue,
				OrdinalPosition: ec.OrdinalPosition,
				Comment:         ec.Comment,
			}
			if oc, exists := oldByName[ec.ColumnName]; exists {
				write.ID = oc.ID
				write.Comment = resolveComment(oc.ColumnComment, ec.Comment)
				if columnChanged(oc, ec) {
					structuralChange = true
				}
			} else {
				structuralChange = true
			}
			update.Columns = append(update.Columns, write)
		}

		for i := range old.Columns {
			if !extNames[old.Columns[i].ColumnName] {
				update.DeleteColumnIDs = append(update.DeleteColumnIDs, old.Columns[i].ID)
				structuralChange = true
			}
		}

		if fkSignature(foreignKeysFromExisting(old.ForeignKeys)) != fkSignature(ext.ForeignKeys) {
			structuralChange = true
		}

		update.BumpVersion = structuralChange
		plan.Updates = append(plan.Updates, update)
	}

	for i := range existing {
		key := tableKey(existing[i].Meta.SchemaName, existing[i].Meta.TableName)
		if !seen[key] {
			plan.DeleteIDs = append(plan.DeleteIDs, existing[i].Meta.ID)
		}
	}

	return plan
}

func tableKey(schema, table string) string {
	return schema + "." + table
}

func newColumns(cols []source.ExtractedColumn) []ColumnWrite {
	writes := make([]ColumnWrite, 0, len(cols))
	for _, c := range cols {
		writes = append(writes, ColumnWrite{
			ColumnName:      c.ColumnName,
			DataType:        c.DataType,
			IsNullable:      c.IsNullable,
			DefaultValue:    c.DefaultValue,
			OrdinalPosition: c.OrdinalPosition,
			Comment:         c.Comment,
		})
	}
	return writes
}

// resolveComment keeps the catalog's comment when one exists: comments are
// user data and survive re-extraction. The source comment only fills a gap.
func resolveComment(catalog, fromSource *string) *string {
	if catalog != nil && *catalog != "" {
		return catalog
	}
	return fromSource
}

func columnChanged(old *models.ColumnMeta, ext source.ExtractedColumn) bool {
	return old.DataType != ext.DataType ||
		old.IsNullable != ext.IsNullable ||
		!stringPtrEqual(old.DefaultValue, ext.DefaultValue) ||
		old.OrdinalPosition != ext.OrdinalPosition
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func foreignKeysFromExisting(fks []ExistingForeignKey) []source.ExtractedForeignKey {
	out := make([]source.ExtractedForeignKey, 0, len(fks))
	for _, fk := range fks {
		out = append(out, source.ExtractedForeignKey{
			ConstraintName:       fk.ConstraintName,
			ColumnName:           fk.ColumnName,
			ReferencedSchemaName: fk.ReferencedSchemaName,
			ReferencedTableName:  fk.ReferencedTableName,
			ReferencedColumnName: fk.ReferencedColumnName,
		})
	}
	return out
}

// fkSignature builds an order-independent fingerprint of a foreign key set.
func fkSignature(fks []source.ExtractedForeignKey) string {
	parts := make([]string, 0, len(fks))
	for _, fk := range fks {
		parts = append(parts, strings.Join([]string{
			fk.ConstraintName, fk.ColumnName,
			fk.ReferencedSchemaName, fk.ReferencedTableName, fk.ReferencedColumnName,
		}, "\x1f"))
	}
	sort.Strings(parts)
	return strconv.Itoa(len(parts)) + "|" + strings.Join(parts, "\x1e")
}
