package models

import (
	"time"

	"github.com/google/uuid"
)

// Extraction record statuses. A record is immutable once it leaves running.
const (
	ExtractionStatusRunning = "running"
	ExtractionStatusSuccess = "success"
	ExtractionStatusFailed  = "failed"
)

// ExtractionRecord is one immutable ledger entry per extraction attempt,
// scheduler-triggered or manual, including failures.
type ExtractionRecord struct {
	ID                  uuid.UUID  `json:"id"`
	DataSourceID        uuid.UUID  `json:"datasource_id"`
	TaskID              *uuid.UUID `json:"task_id,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	DurationSeconds     int64      `json:"duration"`
	Status              string     `json:"status"`
	ExtractedTableCount int        `json:"extracted_table_count"`
	TotalTableCount     int        `json:"total_table_count"`
	Message             string     `json:"message"`
}

// IsTerminal reports whether the record has left the running state.
func (r *ExtractionRecord) IsTerminal() bool {
	return r.Status == ExtractionStatusSuccess || r.Status == ExtractionStatusFailed
}

// HistoryFilter selects extraction records for a ledger query.
// Zero-value fields are not applied.
type HistoryFilter struct {
	DataSourceID uuid.UUID
	Status       string
	Page         int
	PerPage      int
}

// Pagination describes one page of a ledger or table listing.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// NewPagination computes page counts with ceiling division.
func NewPagination(page, perPage, total int) Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, Pages: pages}
}
