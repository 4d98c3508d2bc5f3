// Package trace records world events for post-run analysis.
// The package does not import sim; it stores plain data types.
package trace

import "time"

// EventRecord is one world transition.
type EventRecord struct {
	ID      string // ULID, sortable by simulated time
	At      time.Time
	Kind    string // e.g. "exam_started", "doctor_assigned"
	Subject string // device, doctor or agent id
	Detail  string
}
