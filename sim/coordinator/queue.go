package coordinator

import (
	"sort"
	"time"
)

type waitEntry struct {
	patientID  string
	priority   int
	enqueuedAt time.Time
	seq        uint64
}

// deptQueue orders waiting patients by descending priority, then FIFO.
type deptQueue struct {
	entries []waitEntry
}

// push inserts e and returns its 1-based position. A patient already waiting
// keeps its arrival stamp; a changed priority moves it to its new place.
func (q *deptQueue) push(e waitEntry) int {
	for i, existing := range q.entries {
		if existing.patientID != e.patientID {
			continue
		}
		if existing.priority == e.priority {
			return i + 1
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		e.enqueuedAt, e.seq = existing.enqueuedAt, existing.seq
		break
	}
	i := sort.Search(len(q.entries), func(i int) bool { return waitLess(e, q.entries[i]) })
	q.entries = append(q.entries, waitEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	return i + 1
}

func waitLess(a, b waitEntry) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	if !a.enqueuedAt.Equal(b.enqueuedAt) {
		return a.enqueuedAt.Before(b.enqueuedAt)
	}
	return a.seq < b.seq
}

func (q *deptQueue) pop() (waitEntry, bool) {
	if len(q.entries) == 0 {
		return waitEntry{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

func (q *deptQueue) remove(patientID string) bool {
	for i, e := range q.entries {
		if e.patientID == patientID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *deptQueue) ids() []string {
	out := make([]string, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.patientID
	}
	return out
}

func (q *deptQueue) len() int { return len(q.entries) }
