package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalWorld = `
locations:
  - id: lobby
    capacity: 5
`

func TestParseWorldConfig_Minimal_TakesDefaults(t *testing.T) {
	// GIVEN a layout with only a lobby
	cfg, err := ParseWorldConfig([]byte(minimalWorld))

	// THEN every unset knob takes its default
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, cfg.moveCost())
	assert.True(t, cfg.moveAdvancesClock())
	assert.Equal(t, 48, cfg.vitalsHistory())
	assert.Equal(t, "lobby", cfg.lobby())
	assert.Equal(t, DefaultSchedulerConfig(), cfg.schedulerConfig())
	start, err := cfg.startTime()
	require.NoError(t, err)
	assert.Equal(t, t0, start)
	cal, err := cfg.calendar()
	require.NoError(t, err)
	assert.Equal(t, DefaultCalendar(), cal)
	assert.Equal(t, "lobby", cfg.locations()[0].Name, "name falls back to id")
}

func TestParseWorldConfig_UnknownField_IsError(t *testing.T) {
	_, err := ParseWorldConfig([]byte(minimalWorld + "surprise: true\n"))
	assert.Error(t, err)
}

func TestParseWorldConfig_ExplicitZeroes(t *testing.T) {
	cfg, err := ParseWorldConfig([]byte(minimalWorld + `
move_minutes: 0
move_advances_clock: false
scheduler:
  gate_by_business_hours: false
  hotspot_wait_minutes: 10
equipment:
  - id: ecg_1
    location: lobby
    exam_type: ecg
    duration_minutes: 10
`))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.moveCost())
	assert.False(t, cfg.moveAdvancesClock())
	sc := cfg.schedulerConfig()
	assert.False(t, sc.GateByBusinessHours)
	assert.Equal(t, 10*time.Minute, sc.HotspotWait)
	specs := cfg.equipment()
	require.Len(t, specs, 1)
	assert.Equal(t, 50, specs[0].MaxDailyUsage)
	assert.Equal(t, "ecg_1", specs[0].Name)
}

func TestWorldConfig_Validate_Rejects(t *testing.T) {
	base := func() WorldConfig {
		return WorldConfig{
			Locations: []LocationConfig{
				{ID: "lobby", Capacity: 5, Adjacent: []string{"clinic"}},
				{ID: "clinic", Capacity: 5},
			},
			Departments: map[string]string{"general": "clinic"},
			Equipment: []EquipmentConfig{
				{ID: "xray_1", Location: "clinic", ExamType: "xray", DurationMinutes: 15},
			},
		}
	}
	neg := -1
	ratio := 1.5
	tests := []struct {
		name   string
		mutate func(*WorldConfig)
	}{
		{"bad start time", func(c *WorldConfig) { c.StartTime = "monday" }},
		{"close before open", func(c *WorldConfig) { c.Calendar = CalendarConfig{Open: "18:00", Close: "08:00"} }},
		{"break inverted", func(c *WorldConfig) { c.Calendar = CalendarConfig{BreakStart: "13:00", BreakEnd: "12:00"} }},
		{"bad time of day", func(c *WorldConfig) { c.Calendar.Open = "8am" }},
		{"negative move", func(c *WorldConfig) { c.MoveMinutes = &neg }},
		{"no locations", func(c *WorldConfig) { c.Locations = nil }},
		{"duplicate location", func(c *WorldConfig) { c.Locations = append(c.Locations, LocationConfig{ID: "clinic", Capacity: 1}) }},
		{"zero capacity", func(c *WorldConfig) { c.Locations[1].Capacity = 0 }},
		{"unknown adjacency", func(c *WorldConfig) { c.Locations[1].Adjacent = []string{"roof"} }},
		{"missing lobby", func(c *WorldConfig) { c.Lobby = "foyer" }},
		{"unknown clinic", func(c *WorldConfig) { c.Departments["neuro"] = "neuro" }},
		{"duplicate device", func(c *WorldConfig) { c.Equipment = append(c.Equipment, c.Equipment[0]) }},
		{"device location", func(c *WorldConfig) { c.Equipment[0].Location = "roof" }},
		{"empty exam type", func(c *WorldConfig) { c.Equipment[0].ExamType = "" }},
		{"zero duration", func(c *WorldConfig) { c.Equipment[0].DurationMinutes = 0 }},
		{"negative cap", func(c *WorldConfig) { c.Equipment[0].MaxDailyUsage = -2 }},
		{"bad cron", func(c *WorldConfig) {
			c.Equipment[0].Maintenance = "every tuesday"
			c.Equipment[0].MaintenanceMinutes = 5
		}},
		{"cron without window", func(c *WorldConfig) { c.Equipment[0].Maintenance = "@daily" }},
		{"bottleneck ratio", func(c *WorldConfig) { c.Scheduler.BottleneckUsageRatio = &ratio }},
	}
	require.NoError(t, base().Validate())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultWorldConfig_BuildsHospital(t *testing.T) {
	cfg := DefaultWorldConfig()
	require.NoError(t, cfg.Validate())

	w, err := NewWorld(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, w.Scheduler().Status("", ""), 12)
	assert.Equal(t, []string{"gastro", "internal_medicine", "neuro", "surgery"}, w.Departments())
	assert.Len(t, w.Scheduler().Status("ecg", ""), 2)
	clinic, ok := w.ClinicFor("neuro")
	assert.True(t, ok)
	assert.Equal(t, "neuro", clinic)
	assert.Equal(t, "lobby", w.Lobby())
}
