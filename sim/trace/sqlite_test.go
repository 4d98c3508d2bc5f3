package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportSQLite_RoundTripsRecords(t *testing.T) {
	// GIVEN a log with two records
	l := NewEventLog(TraceConfig{}, 11)
	l.Record(t0, "exam_started", "mri_1", "p1")
	l.Record(t0.Add(45*time.Minute), "exam_completed", "mri_1", "p1")
	path := filepath.Join(t.TempDir(), "events.db")

	// WHEN exported twice (the second export must not duplicate rows)
	ctx := context.Background()
	require.NoError(t, ExportSQLite(ctx, path, l.Records()))
	require.NoError(t, ExportSQLite(ctx, path, l.Records()))

	// THEN loading returns the same records in id order
	got, err := LoadSQLite(ctx, path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, l.Records()[0].ID, got[0].ID)
	assert.Equal(t, "exam_completed", got[1].Kind)
	assert.True(t, got[1].At.Equal(t0.Add(45*time.Minute)))
}
