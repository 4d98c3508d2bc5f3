// Implements the simulated clock and the business-hour calendar.
// Simulated time only moves through Advance; nothing here reads the wall clock.

package sim

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TimeOfDay is a wall-clock offset from midnight with minute resolution.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("time of day %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q: bad minute", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// TimeOfDayOf returns the time of day of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (d TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(d)/60, int(d)%60)
}

// Calendar is the open interval of a working day minus one break interval.
type Calendar struct {
	Open       TimeOfDay
	Close      TimeOfDay
	BreakStart TimeOfDay
	BreakEnd   TimeOfDay
}

// DefaultCalendar is 08:00-18:00 with a 12:00-13:30 break.
func DefaultCalendar() Calendar {
	return Calendar{Open: 8 * 60, Close: 18 * 60, BreakStart: 12 * 60, BreakEnd: 13*60 + 30}
}

// IsWorking reports whether t falls in [Open, Close) and outside [BreakStart, BreakEnd).
func (c Calendar) IsWorking(t time.Time) bool {
	tod := TimeOfDayOf(t)
	if tod < c.Open || tod >= c.Close {
		return false
	}
	if c.BreakEnd > c.BreakStart && tod >= c.BreakStart && tod < c.BreakEnd {
		return false
	}
	return true
}

func (c Calendar) String() string {
	return fmt.Sprintf("%s-%s (break %s-%s)", c.Open, c.Close, c.BreakStart, c.BreakEnd)
}

// Clock holds the current simulated timestamp.
// Reads are safe from any goroutine; writes happen only inside World.Advance.
type Clock struct {
	mu       sync.RWMutex
	now      time.Time
	calendar Calendar
}

// NewClock creates a clock at start using the given calendar.
func NewClock(start time.Time, calendar Calendar) *Clock {
	return &Clock{now: start, calendar: calendar}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Calendar returns the configured business-hour calendar.
func (c *Clock) Calendar() Calendar {
	return c.calendar
}

// IsWorkingHours reports whether the current simulated time is inside business hours.
func (c *Clock) IsWorkingHours() bool {
	return c.calendar.IsWorking(c.Now())
}

// advance moves the clock forward and reports whether a day boundary was crossed.
func (c *Clock) advance(d time.Duration) (prev, now time.Time, crossed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev = c.now
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return prev, c.now, !sameDay(prev, c.now)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
