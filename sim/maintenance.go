// Implements recurring maintenance plans evaluated against simulated time.

package sim

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var planParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// maintenancePlan is a cron schedule plus the window length of each occurrence.
// next is the earliest occurrence not yet honored; a due occurrence waits
// while the device is busy.
type maintenancePlan struct {
	expr     string
	schedule cron.Schedule
	window   time.Duration
	next     time.Time
}

// ParseMaintenanceSchedule validates a 5-field cron expression or descriptor ("@daily", "@every 6h").
func ParseMaintenanceSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty maintenance schedule")
	}
	sched, err := planParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("maintenance schedule %q: %w", expr, err)
	}
	return sched, nil
}

func newMaintenancePlan(expr string, window time.Duration, now time.Time) (*maintenancePlan, error) {
	if window <= 0 {
		return nil, fmt.Errorf("maintenance window must be positive, got %s", window)
	}
	sched, err := ParseMaintenanceSchedule(expr)
	if err != nil {
		return nil, err
	}
	return &maintenancePlan{expr: expr, schedule: sched, window: window, next: sched.Next(now)}, nil
}

// due reports whether an occurrence is at or before now.
func (p *maintenancePlan) due(now time.Time) bool {
	return p != nil && !p.next.IsZero() && !p.next.After(now)
}

// consume marks the occurrence honored, skipping any occurrences that fall
// inside the window starting at start.
func (p *maintenancePlan) consume(start time.Time) {
	end := start.Add(p.window)
	next := p.schedule.Next(start)
	for !next.IsZero() && next.Before(end) {
		next = p.schedule.Next(next)
	}
	p.next = next
}
