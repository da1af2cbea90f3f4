package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
)

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule models.Schedule
		wantErr  bool
	}{
		{
			name:     "valid interval",
			schedule: models.Schedule{Type: models.ScheduleTypeInterval, IntervalValue: 30, IntervalUnit: models.IntervalUnitMinutes},
		},
		{
			name:     "zero interval value",
			schedule: models.Schedule{Type: models.ScheduleTypeInterval, IntervalValue: 0, IntervalUnit: models.IntervalUnitHours},
			wantErr:  true,
		},
		{
			name:     "unknown interval unit",
			schedule: models.Schedule{Type: models.ScheduleTypeInterval, IntervalValue: 1, IntervalUnit: "fortnights"},
			wantErr:  true,
		},
		{
			name:     "valid cron",
			schedule: models.Schedule{Type: models.ScheduleTypeCron, CronExpression: "0 2 * * *"},
		},
		{
			name:     "cron descriptor",
			schedule: models.Schedule{Type: models.ScheduleTypeCron, CronExpression: "@hourly"},
		},
		{
			name:     "invalid cron",
			schedule: models.Schedule{Type: models.ScheduleTypeCron, CronExpression: "not a cron"},
			wantErr:  true,
		},
		{
			name:     "unknown type",
			schedule: models.Schedule{Type: "sometimes"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.schedule)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextRun_IntervalFirstRunAnchorsAtNow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := models.Schedule{Type: models.ScheduleTypeInterval, IntervalValue: 2, IntervalUnit: models.IntervalUnitHours}

	next, err := NextRun(s, nil, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), next)
}

func TestNextRun_IntervalAnchorsAtLastRun(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-10 * time.Minute)
	s := models.Schedule{Type: models.ScheduleTypeInterval, IntervalValue: 30, IntervalUnit: models.IntervalUnitMinutes}

	next, err := NextRun(s, &last, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, last.Add(30*time.Minute), next)
}

func TestNextRun_MissedIntervalIsDueNowNotReplayed(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	last := now.Add(-5 * time.Hour) // several periods missed
	s := models.Schedule{Type: models.ScheduleTypeInterval, IntervalValue: 1, IntervalUnit: models.IntervalUnitHours}

	next, err := NextRun(s, &last, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, now, next)
}

func TestNextRun_IntervalUnits(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		unit string
		want time.Time
	}{
		{models.IntervalUnitMinutes, now.Add(3 * time.Minute)},
		{models.IntervalUnitHours, now.Add(3 * time.Hour)},
		{models.IntervalUnitDays, now.Add(3 * 24 * time.Hour)},
		{models.IntervalUnitWeeks, now.Add(3 * 7 * 24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			s := models.Schedule{Type: models.ScheduleTypeInterval, IntervalValue: 3, IntervalUnit: tt.unit}
			next, err := NextRun(s, nil, now, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
		})
	}
}

func TestNextRun_CronNextMatchAfterNow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	s := models.Schedule{Type: models.ScheduleTypeCron, CronExpression: "0 2 * * *"}

	next, err := NextRun(s, nil, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 2, 0, 0, 0, time.UTC), next)
}

func TestNextRun_CronIgnoresLastRun(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 30, 0, 0, time.UTC)
	last := now.Add(-30 * 24 * time.Hour)
	s := models.Schedule{Type: models.ScheduleTypeCron, CronExpression: "0 2 * * *"}

	withLast, err := NextRun(s, &last, now, time.UTC)
	require.NoError(t, err)
	withoutLast, err := NextRun(s, nil, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, withoutLast, withLast)
}

func TestNextRun_CronHonorsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 12:00 UTC on 2025-03-10 is 08:00 in New York; the next daily 02:00
	// local match is the following New York morning.
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := models.Schedule{Type: models.ScheduleTypeCron, CronExpression: "0 2 * * *"}

	next, err := NextRun(s, nil, now, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 2, 0, 0, 0, loc), next)
}
