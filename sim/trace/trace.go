package trace

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TraceLevel controls the verbosity of event logging.
type TraceLevel string

const (
	// TraceLevelNone disables logging (Record is a no-op).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every world transition.
	TraceLevelEvents TraceLevel = "events"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to events
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls event collection.
type TraceConfig struct {
	Level TraceLevel
	// Capacity bounds the number of retained records; the oldest are dropped. Zero is unbounded.
	Capacity int
}

// EventLog collects EventRecords. Safe for concurrent use.
type EventLog struct {
	config  TraceConfig
	mu      sync.Mutex
	records []EventRecord
	dropped int
	entropy *ulid.MonotonicEntropy
}

// NewEventLog creates an EventLog ready for recording. seed fixes the ULID
// entropy so identical runs produce identical ids.
func NewEventLog(config TraceConfig, seed int64) *EventLog {
	if config.Level == "" {
		config.Level = TraceLevelEvents
	}
	return &EventLog{
		config:  config,
		records: make([]EventRecord, 0),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// Record appends an event.
func (l *EventLog) Record(at time.Time, kind, subject, detail string) {
	if l == nil || l.config.Level == TraceLevelNone {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(at), l.entropy).String()
	l.records = append(l.records, EventRecord{ID: id, At: at, Kind: kind, Subject: subject, Detail: detail})
	if c := l.config.Capacity; c > 0 && len(l.records) > c {
		l.dropped += len(l.records) - c
		l.records = append([]EventRecord(nil), l.records[len(l.records)-c:]...)
	}
}

// Records returns a copy of every retained record in recording order.
func (l *EventLog) Records() []EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]EventRecord(nil), l.records...)
}

// Recent returns up to limit of the most recent records, oldest first.
func (l *EventLog) Recent(limit int) []EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.records) {
		limit = len(l.records)
	}
	return append([]EventRecord(nil), l.records[len(l.records)-limit:]...)
}

// Len returns the number of retained records.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Dropped returns how many records were evicted by the capacity bound.
func (l *EventLog) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
