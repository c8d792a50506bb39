// Package maintenance decides whether a project is inside a maintenance
// window, during which alert dispatch is suppressed.
package maintenance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"pulsewatch/internal/models"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a 5-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Contains reports whether now falls inside w. One-time windows include both
// ends. A recurring window contains now when some fire time f satisfies
// f <= now <= f + duration.
func Contains(w models.MaintenanceWindow, now time.Time) (bool, error) {
	if !w.IsActive {
		return false, nil
	}
	switch w.Type {
	case models.WindowOneTime:
		if w.StartTime == nil || w.EndTime == nil {
			return false, nil
		}
		return !now.Before(*w.StartTime) && !now.After(*w.EndTime), nil
	case models.WindowRecurring:
		if w.CronSchedule == "" || w.Duration <= 0 {
			return false, nil
		}
		sched, err := ParseSchedule(w.CronSchedule)
		if err != nil {
			return false, err
		}
		return recurringContains(sched, time.Duration(w.Duration)*time.Minute, now), nil
	default:
		return false, fmt.Errorf("unknown window type %q", w.Type)
	}
}

func recurringContains(sched cron.Schedule, d time.Duration, now time.Time) bool {
	from := now.Add(-d)
	// Next is strictly after its argument at second granularity.
	next := sched.Next(from.Add(-time.Second))
	if next.IsZero() {
		return false
	}
	return !next.Before(from) && !next.After(now)
}
