package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func TestEventLog_Record_AppendsWithULID(t *testing.T) {
	// GIVEN an event log
	l := NewEventLog(TraceConfig{Level: TraceLevelEvents}, 1)

	// WHEN one event is recorded
	l.Record(t0, "exam_started", "ct_1", "patient_001")

	// THEN it is retained with a parseable ULID stamped at the simulated time
	recs := l.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "exam_started", recs[0].Kind)
	assert.Equal(t, "ct_1", recs[0].Subject)
	id, err := ulid.Parse(recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(t0), id.Time())
}

func TestEventLog_LevelNone_RecordsNothing(t *testing.T) {
	l := NewEventLog(TraceConfig{Level: TraceLevelNone}, 1)
	l.Record(t0, "k", "s", "")
	assert.Equal(t, 0, l.Len())
}

func TestEventLog_Capacity_DropsOldest(t *testing.T) {
	// GIVEN a log bounded to 2 records
	l := NewEventLog(TraceConfig{Capacity: 2}, 1)

	// WHEN three are recorded
	for i := 0; i < 3; i++ {
		l.Record(t0.Add(time.Duration(i)*time.Minute), "tick", "clock", "")
	}

	// THEN the first is evicted
	recs := l.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, t0.Add(time.Minute), recs[0].At)
	assert.Equal(t, 1, l.Dropped())
}

func TestEventLog_Recent_ReturnsTail(t *testing.T) {
	l := NewEventLog(TraceConfig{}, 1)
	for i := 0; i < 5; i++ {
		l.Record(t0.Add(time.Duration(i)*time.Minute), "tick", "clock", "")
	}
	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, t0.Add(3*time.Minute), recent[0].At)
	assert.Len(t, l.Recent(0), 5)
}

func TestEventLog_ConcurrentRecord_UniqueIDs(t *testing.T) {
	// GIVEN many goroutines recording at the same simulated instant
	l := NewEventLog(TraceConfig{}, 7)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Record(t0, "tick", "clock", "")
			}
		}()
	}
	wg.Wait()

	// THEN every id is distinct
	seen := make(map[string]bool)
	for _, r := range l.Records() {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
	assert.Len(t, seen, 400)
}

func TestIsValidTraceLevel(t *testing.T) {
	assert.True(t, IsValidTraceLevel("none"))
	assert.True(t, IsValidTraceLevel("events"))
	assert.True(t, IsValidTraceLevel(""))
	assert.False(t, IsValidTraceLevel("verbose"))
}
