package workflow

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_CountsAndTurnaround(t *testing.T) {
	// GIVEN two completed workflows of 30 and 90 minutes and one failure
	t0 := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	results := []Result{
		{Status: StatusCompleted, Visits: 1, Start: t0, End: t0.Add(30 * time.Minute)},
		{Status: StatusCompleted, Visits: 2, Start: t0, End: t0.Add(90 * time.Minute),
			Steps: []StepRecord{{Name: "lab"}}},
		{Status: StatusFailed, Reason: ReasonAssignmentTimeout,
			Steps: []StepRecord{{Name: "await_doctor", Err: "assignment timeout"}}},
	}

	// WHEN summarized
	s := Summarize(results)

	// THEN counts, reasons and turnaround statistics match
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, map[string]int{ReasonAssignmentTimeout: 1}, s.Reasons)
	assert.Equal(t, map[string]int{"await_doctor": 1}, s.StepFailuresByName)
	assert.InDelta(t, 60.0, s.MeanTurnaround, 1e-9)
	assert.InDelta(t, math.Sqrt(1800), s.StdDevTurnaround, 1e-9)
	assert.InDelta(t, 90.0, s.MaxTurnaround, 1e-9)
	assert.InDelta(t, 1.5, s.MeanVisits, 1e-9)
	assert.InDelta(t, 1.0/3.0, s.ExamsPerPatient, 1e-9)
	assert.Contains(t, s.String(), "failed assignment_timeout")
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.MeanTurnaround)
	assert.Zero(t, s.StdDevTurnaround)
}

func TestResult_Turnaround_NeverNegative(t *testing.T) {
	t0 := time.Now()
	assert.Zero(t, Result{Start: t0, End: t0.Add(-time.Minute)}.Turnaround())
}
