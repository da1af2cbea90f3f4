// Package scheduler runs extraction tasks when their schedules come due.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
)

// cronParser accepts standard five-field expressions plus descriptors such
// as @hourly.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule checks a schedule definition without evaluating it.
func ValidateSchedule(s models.Schedule) error {
	switch s.Type {
	case models.ScheduleTypeInterval:
		if s.IntervalValue <= 0 {
			return fmt.Errorf("interval_value must be positive: %w", apperrors.ErrValidation)
		}
		switch s.IntervalUnit {
		case models.IntervalUnitMinutes, models.IntervalUnitHours, models.IntervalUnitDays, models.IntervalUnitWeeks:
		default:
			return fmt.Errorf("unknown interval_unit %q: %w", s.IntervalUnit, apperrors.ErrValidation)
		}
	case models.ScheduleTypeCron:
		if _, err := cronParser.Parse(s.CronExpression); err != nil {
			return fmt.Errorf("invalid cron expression %q: %v: %w", s.CronExpression, err, apperrors.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown schedule_type %q: %w", s.Type, apperrors.ErrValidation)
	}
	return nil
}

// NextRun computes the next due time for a schedule. Interval schedules run
// a fixed duration after the previous run, anchored at now for tasks that
// never ran; a missed interval run is due immediately, not replayed per
// missed period. Cron schedules always take the next match strictly after
// now in the given location.
func NextRun(s models.Schedule, lastRun *time.Time, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	switch s.Type {
	case models.ScheduleTypeInterval:
		d, err := intervalDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		if lastRun == nil {
			return now.Add(d), nil
		}
		next := lastRun.Add(d)
		if next.Before(now) {
			return now, nil
		}
		return next, nil
	case models.ScheduleTypeCron:
		sched, err := cronParser.Parse(s.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %v: %w", s.CronExpression, err, apperrors.ErrValidation)
		}
		return sched.Next(now.In(loc)), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule_type %q: %w", s.Type, apperrors.ErrValidation)
	}
}

func intervalDuration(s models.Schedule) (time.Duration, error) {
	if s.IntervalValue <= 0 {
		return 0, fmt.Errorf("interval_value must be positive: %w", apperrors.ErrValidation)
	}
	v := time.Duration(s.IntervalValue)
	switch s.IntervalUnit {
	case models.IntervalUnitMinutes:
		return v * time.Minute, nil
	case models.IntervalUnitHours:
		return v * time.Hour, nil
	case models.IntervalUnitDays:
		return v * 24 * time.Hour, nil
	case models.IntervalUnitWeeks:
		return v * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval_unit %q: %w", s.IntervalUnit, apperrors.ErrValidation)
	}
}
