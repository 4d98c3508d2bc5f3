package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilLog_ReturnsZeroSummary(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.NotNil(t, s.ByKind)
}

func TestSummarize_CountsKindsAndSubjects(t *testing.T) {
	// GIVEN a log with mixed events recorded out of time order
	l := NewEventLog(TraceConfig{}, 3)
	l.Record(t0.Add(30*time.Minute), "exam_completed", "ct_1", "p1")
	l.Record(t0, "exam_started", "ct_1", "p1")
	l.Record(t0.Add(5*time.Minute), "exam_queued", "xray_1", "p2")

	// WHEN summarized
	s := Summarize(l)

	// THEN counts and the time span are reported
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.ByKind["exam_started"])
	assert.Equal(t, 2, s.BySubject["ct_1"])
	assert.Equal(t, t0, s.First)
	assert.Equal(t, t0.Add(30*time.Minute), s.Last)
}
