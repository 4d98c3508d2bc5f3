package sim

import (
	"container/heap"
	"time"
)

// EventType identifies the kind of world event.
type EventType string

const (
	EventExamStarted      EventType = "exam_started"
	EventExamQueued       EventType = "exam_queued"
	EventExamCompleted    EventType = "exam_completed"
	EventMaintenanceStart EventType = "maintenance_start"
	EventMaintenanceEnd   EventType = "maintenance_end"
	EventDayBoundary      EventType = "day_boundary"
	EventAgentMoved       EventType = "agent_moved"
	EventReservation      EventType = "reservation"
)

// eventTypePriority orders simultaneous events: a day boundary is delivered
// before anything stamped at the same instant.
var eventTypePriority = map[EventType]int{
	EventDayBoundary:      0,
	EventMaintenanceEnd:   1,
	EventExamCompleted:    2,
	EventMaintenanceStart: 3,
	EventExamStarted:      4,
}

// Event is a world transition produced during Advance and delivered to
// subscribers after the world locks are released.
type Event interface {
	Timestamp() time.Time
	Type() EventType
}

// ExamCompletion reports a finished exam.
type ExamCompletion struct {
	EquipmentID string
	ExamType    string
	PatientID   string
	Started     time.Time
	Finished    time.Time
}

func (e ExamCompletion) Timestamp() time.Time { return e.Finished }
func (e ExamCompletion) Type() EventType      { return EventExamCompleted }

// ExamStart reports an exam started from a queue or reservation during a sweep.
type ExamStart struct {
	EquipmentID string
	PatientID   string
	Started     time.Time
	Reserved    bool
}

func (e ExamStart) Timestamp() time.Time { return e.Started }
func (e ExamStart) Type() EventType      { return EventExamStarted }

// MaintenanceWindow reports a device entering or leaving maintenance.
type MaintenanceWindow struct {
	EquipmentID string
	At          time.Time
	Until       time.Time
	Ended       bool
}

func (e MaintenanceWindow) Timestamp() time.Time { return e.At }
func (e MaintenanceWindow) Type() EventType {
	if e.Ended {
		return EventMaintenanceEnd
	}
	return EventMaintenanceStart
}

// DayBoundary reports that the clock crossed midnight into Day.
type DayBoundary struct {
	Day time.Time
}

func (e DayBoundary) Timestamp() time.Time { return e.Day }
func (e DayBoundary) Type() EventType      { return EventDayBoundary }

// Recorder receives a line per notable world transition.
// Implementations must be safe for concurrent use and must not call back into the world.
type Recorder interface {
	Record(at time.Time, kind, subject, detail string)
}

type nopRecorder struct{}

func (nopRecorder) Record(time.Time, string, string, string) {}

// EventQueue orders events by timestamp, then type priority, then insertion order.
type EventQueue struct {
	items []queuedEvent
	seq   uint64
}

type queuedEvent struct {
	ev  Event
	seq uint64
}

func (q *EventQueue) Len() int { return len(q.items) }

func (q *EventQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if !a.ev.Timestamp().Equal(b.ev.Timestamp()) {
		return a.ev.Timestamp().Before(b.ev.Timestamp())
	}
	pa, pb := priorityOf(a.ev.Type()), priorityOf(b.ev.Type())
	if pa != pb {
		return pa < pb
	}
	return a.seq < b.seq
}

func priorityOf(t EventType) int {
	if p, ok := eventTypePriority[t]; ok {
		return p
	}
	return len(eventTypePriority)
}

func (q *EventQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *EventQueue) Push(x any) { q.items = append(q.items, x.(queuedEvent)) }

func (q *EventQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// Schedule adds an event.
func (q *EventQueue) Schedule(e Event) {
	q.seq++
	heap.Push(q, queuedEvent{ev: e, seq: q.seq})
}

// PopNext removes and returns the earliest event, or nil when empty.
func (q *EventQueue) PopNext() Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(queuedEvent).ev
}
