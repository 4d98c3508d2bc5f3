// Implements the EquipmentQueue, which holds patients waiting for one device.
// Entries are kept sorted on insert so the head is always the next to serve.

package sim

import (
	"fmt"
	"sort"
	"strings"
)

// EquipmentQueue orders waiting patients by ascending Priority (smaller is
// more urgent), then by arrival order.
type EquipmentQueue struct {
	queue []QueueEntry
	seq   uint64
}

// Enqueue inserts an entry at its priority position and returns the 1-based
// position. A patient already present is not added twice; its current position
// is returned instead.
func (q *EquipmentQueue) Enqueue(e QueueEntry) int {
	if pos := q.Position(e.PatientID); pos > 0 {
		return pos
	}
	q.seq++
	e.seq = q.seq
	i := sort.Search(len(q.queue), func(i int) bool { return entryLess(e, q.queue[i]) })
	q.queue = append(q.queue, QueueEntry{})
	copy(q.queue[i+1:], q.queue[i:])
	q.queue[i] = e
	return i + 1
}

// entryLess is the queue comparator: priority ascending, then enqueue time, then insertion order.
func entryLess(a, b QueueEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.seq < b.seq
}

func (q *EquipmentQueue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, e := range q.queue {
		fmt.Fprintf(&sb, "%s(p%d)", e.PatientID, e.Priority)
		if i < len(q.queue)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// Len returns the number of waiting patients.
func (q *EquipmentQueue) Len() int {
	return len(q.queue)
}

// Peek returns the head entry without removing it.
func (q *EquipmentQueue) Peek() (QueueEntry, bool) {
	if len(q.queue) == 0 {
		return QueueEntry{}, false
	}
	return q.queue[0], true
}

// Dequeue removes and returns the head entry.
func (q *EquipmentQueue) Dequeue() (QueueEntry, bool) {
	if len(q.queue) == 0 {
		return QueueEntry{}, false
	}
	head := q.queue[0]
	q.queue = q.queue[1:]
	return head, true
}

// Remove drops a patient from the queue. Reports whether it was present.
func (q *EquipmentQueue) Remove(patientID string) bool {
	for i, e := range q.queue {
		if e.PatientID == patientID {
			q.queue = append(q.queue[:i], q.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Position returns the 1-based position of patientID, or 0 if absent.
func (q *EquipmentQueue) Position(patientID string) int {
	for i, e := range q.queue {
		if e.PatientID == patientID {
			return i + 1
		}
	}
	return 0
}

// Snapshot returns a copy of the queue contents in service order.
func (q *EquipmentQueue) Snapshot() []QueueEntry {
	return append([]QueueEntry(nil), q.queue...)
}
