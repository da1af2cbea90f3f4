package models

import (
	"time"

	"github.com/google/uuid"
)

// Schedule kinds for extraction tasks.
const (
	ScheduleTypeInterval = "interval"
	ScheduleTypeCron     = "cron"
)

// Interval units.
const (
	IntervalUnitMinutes = "minutes"
	IntervalUnitHours   = "hours"
	IntervalUnitDays    = "days"
	IntervalUnitWeeks   = "weeks"
)

// Task statuses.
const (
	TaskStatusActive   = "active"
	TaskStatusDisabled = "disabled"
)

// Schedule describes when an extraction task is due: either a fixed interval
// after the previous run, or the next match of a cron expression.
type Schedule struct {
	Type           string `json:"schedule_type"`
	IntervalValue  int    `json:"interval_value,omitempty"`
	IntervalUnit   string `json:"interval_unit,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
}

// ExtractionTask is a scheduled extraction of one datasource.
type ExtractionTask struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	DataSourceID uuid.UUID  `json:"datasource_id"`
	Schedule     Schedule   `json:"schedule"`
	Status       string     `json:"status"`
	Description  string     `json:"description,omitempty"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive reports whether the scheduler should consider the task.
func (t *ExtractionTask) IsActive() bool {
	return t.Status == TaskStatusActive
}
