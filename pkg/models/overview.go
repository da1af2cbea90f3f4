package models

import "github.com/google/uuid"

// DatasourceTableCount is one slice of the catalog's per-datasource table
// distribution.
type DatasourceTableCount struct {
	DataSourceID uuid.UUID `json:"datasource_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	TableCount   int       `json:"table_count"`
}

// Overview aggregates catalog-wide statistics for the dashboard endpoint.
type Overview struct {
	DatasourceCount  int                    `json:"datasource_count"`
	TableCount       int                    `json:"table_count"`
	ColumnCount      int                    `json:"column_count"`
	TaskCount        int                    `json:"task_count"`
	LatestExtraction *ExtractionRecord      `json:"latest_extraction,omitempty"`
	Distribution     []DatasourceTableCount `json:"table_distribution"`
}
