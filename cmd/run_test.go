package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoitHT/patient-agent-sub001/sim/trace"
)

func fastOptions() runOptions {
	return runOptions{
		Patients:       6,
		Seed:           7,
		Workers:        3,
		DoctorsPerDept: 2,
		TraceLevel:     trace.TraceLevelEvents,
		AssignTimeout:  5 * time.Second,
		ResultTimeout:  5 * time.Second,
		ClockStep:      5 * time.Minute,
		ClockInterval:  time.Millisecond,
		RecentEvents:   3,
	}
}

func TestRunSimulation_GeneratedPatients_ReportAndEventDB(t *testing.T) {
	// GIVEN the built-in hospital, six generated patients and an event DB path
	opts := fastOptions()
	opts.EventDB = filepath.Join(t.TempDir(), "events.db")
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// WHEN the simulation runs
	require.NoError(t, runSimulation(ctx, opts, &out))

	// THEN the report covers every section
	report := out.String()
	assert.Contains(t, report, "=== Simulation Report")
	assert.Contains(t, report, "workflows: 6")
	assert.Contains(t, report, "--- Staff ---")
	assert.Contains(t, report, "--- Equipment ---")
	assert.Contains(t, report, "--- Event Log ---")
	assert.Contains(t, report, "patient_000")

	// AND the event log was exported
	records, err := trace.LoadSQLite(ctx, opts.EventDB)
	require.NoError(t, err)
	assert.NotEmpty(t, records)
}

func TestRunSimulation_Scenario(t *testing.T) {
	// GIVEN a one-patient scenario
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
patients:
  - id: alice
    name: Alice
    age: 30
    dept: internal_medicine
    chief_complaint: mild cough
    symptoms:
      - {name: cough, severity: 4, progression: 0.05}
`), 0o644))
	opts := fastOptions()
	opts.ScenarioPath = path
	var out bytes.Buffer

	// WHEN it runs
	require.NoError(t, runSimulation(context.Background(), opts, &out))

	// THEN the patient completes
	assert.Contains(t, out.String(), "workflows: 1 (completed 1, failed 0)")
	assert.Contains(t, out.String(), "alice")
}

func TestRunSimulation_RejectsBadInputs(t *testing.T) {
	t.Run("missing world file", func(t *testing.T) {
		opts := fastOptions()
		opts.WorldPath = filepath.Join(t.TempDir(), "nope.yaml")
		assert.Error(t, runSimulation(context.Background(), opts, &bytes.Buffer{}))
	})
	t.Run("scenario with unknown department", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "s.yaml")
		require.NoError(t, os.WriteFile(path, []byte("patients:\n  - id: x\n    dept: cardiology\n"), 0o644))
		opts := fastOptions()
		opts.ScenarioPath = path
		assert.Error(t, runSimulation(context.Background(), opts, &bytes.Buffer{}))
	})
	t.Run("no doctors", func(t *testing.T) {
		opts := fastOptions()
		opts.DoctorsPerDept = 0
		assert.Error(t, runSimulation(context.Background(), opts, &bytes.Buffer{}))
	})
}

func TestDescribeWorld_ListsLayout(t *testing.T) {
	// GIVEN the built-in hospital
	cfg, err := loadWorldConfig("")
	require.NoError(t, err)
	var out bytes.Buffer

	// WHEN described
	require.NoError(t, describeWorld(&out, cfg))

	// THEN locations, devices and departments all appear
	s := out.String()
	assert.Contains(t, s, "Locations:")
	assert.Contains(t, s, "lab")
	assert.Contains(t, s, "(business hours)")
	assert.Contains(t, s, "blood_analyzer_1")
	assert.Contains(t, s, "internal_medicine")
}

func TestSubmitAll_PacesArrivals(t *testing.T) {
	// GIVEN a limiter of 20 arrivals per second and burst 1
	opts := fastOptions()
	opts.Patients = 3
	opts.ArrivalRate = 20
	start := time.Now()

	// WHEN three patients are submitted
	require.NoError(t, runSimulation(context.Background(), opts, &bytes.Buffer{}))

	// THEN at least two inter-arrival gaps of 50ms passed
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
