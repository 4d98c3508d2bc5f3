package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func ids(entries []QueueEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.PatientID)
	}
	return out
}

func TestEquipmentQueue_Enqueue_OrdersByAscendingPriority(t *testing.T) {
	// GIVEN an empty queue
	q := &EquipmentQueue{}

	// WHEN patients arrive with priorities 5, 7, 2
	q.Enqueue(QueueEntry{PatientID: "a", Priority: 5, EnqueuedAt: t0})
	q.Enqueue(QueueEntry{PatientID: "b", Priority: 7, EnqueuedAt: t0})
	pos := q.Enqueue(QueueEntry{PatientID: "c", Priority: 2, EnqueuedAt: t0})

	// THEN the smallest value is served first
	assert.Equal(t, 1, pos)
	assert.Equal(t, []string{"c", "a", "b"}, ids(q.Snapshot()))
}

func TestEquipmentQueue_Enqueue_TiesKeepArrivalOrder(t *testing.T) {
	// GIVEN three patients with the same priority and enqueue time
	q := &EquipmentQueue{}
	for _, id := range []string{"x", "y", "z"} {
		q.Enqueue(QueueEntry{PatientID: id, Priority: 3, EnqueuedAt: t0})
	}

	// WHEN they are dequeued
	var got []string
	for e, ok := q.Dequeue(); ok; e, ok = q.Dequeue() {
		got = append(got, e.PatientID)
	}

	// THEN they come out in insertion order
	assert.Equal(t, []string{"x", "y", "z"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestEquipmentQueue_Enqueue_EarlierArrivalWinsTie(t *testing.T) {
	q := &EquipmentQueue{}
	q.Enqueue(QueueEntry{PatientID: "late", Priority: 3, EnqueuedAt: t0.Add(time.Minute)})
	q.Enqueue(QueueEntry{PatientID: "early", Priority: 3, EnqueuedAt: t0})

	assert.Equal(t, []string{"early", "late"}, ids(q.Snapshot()))
}

func TestEquipmentQueue_Enqueue_DuplicateReturnsExistingPosition(t *testing.T) {
	// GIVEN a patient already queued second
	q := &EquipmentQueue{}
	q.Enqueue(QueueEntry{PatientID: "a", Priority: 1, EnqueuedAt: t0})
	q.Enqueue(QueueEntry{PatientID: "b", Priority: 2, EnqueuedAt: t0})

	// WHEN the same patient is enqueued again with a better priority
	pos := q.Enqueue(QueueEntry{PatientID: "b", Priority: 0, EnqueuedAt: t0})

	// THEN it is not added twice and keeps its place
	assert.Equal(t, 2, pos)
	assert.Equal(t, 2, q.Len())
}

func TestEquipmentQueue_RemoveAndPosition(t *testing.T) {
	q := &EquipmentQueue{}
	q.Enqueue(QueueEntry{PatientID: "a", Priority: 1, EnqueuedAt: t0})
	q.Enqueue(QueueEntry{PatientID: "b", Priority: 2, EnqueuedAt: t0})

	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.Equal(t, 1, q.Position("b"))
	assert.Equal(t, 0, q.Position("a"))
	head, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, "b", head.PatientID)
	assert.Equal(t, "[b(p2)]", q.String())
}

func TestEquipmentQueue_Empty(t *testing.T) {
	q := &EquipmentQueue{}
	_, ok := q.Peek()
	assert.False(t, ok)
	_, ok = q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, "[]", q.String())
}
