package sim

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CalendarConfig is the YAML form of a Calendar.
type CalendarConfig struct {
	Open       string `yaml:"open"`
	Close      string `yaml:"close"`
	BreakStart string `yaml:"break_start"`
	BreakEnd   string `yaml:"break_end"`
}

// LocationConfig is the YAML form of a Location.
type LocationConfig struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Department        string   `yaml:"department"`
	Capacity          int      `yaml:"capacity"`
	Adjacent          []string `yaml:"adjacent"`
	Actions           []string `yaml:"actions"`
	BusinessHoursOnly bool     `yaml:"business_hours_only"`
}

// EquipmentConfig is the YAML form of an EquipmentSpec.
type EquipmentConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Location           string `yaml:"location"`
	ExamType           string `yaml:"exam_type"`
	DurationMinutes    int    `yaml:"duration_minutes"`
	MaxDailyUsage      int    `yaml:"max_daily_usage"`
	Maintenance        string `yaml:"maintenance"`
	MaintenanceMinutes int    `yaml:"maintenance_minutes"`
}

// SchedulerYAML is the YAML form of SchedulerConfig. Pointers distinguish
// "unset" from an explicit zero/false.
type SchedulerYAML struct {
	HotspotQueueLength   *int     `yaml:"hotspot_queue_length"`
	HotspotWaitMinutes   *int     `yaml:"hotspot_wait_minutes"`
	BottleneckUsageRatio *float64 `yaml:"bottleneck_usage_ratio"`
	GateByBusinessHours  *bool    `yaml:"gate_by_business_hours"`
}

// WorldConfig describes a whole hospital.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type WorldConfig struct {
	StartTime         string            `yaml:"start_time"` // RFC 3339
	Calendar          CalendarConfig    `yaml:"calendar"`
	MoveMinutes       *int              `yaml:"move_minutes"`
	MoveAdvancesClock *bool             `yaml:"move_advances_clock"`
	VitalsHistory     int               `yaml:"vitals_history"`
	Lobby             string            `yaml:"lobby"`
	Locations         []LocationConfig  `yaml:"locations"`
	Equipment         []EquipmentConfig `yaml:"equipment"`
	Departments       map[string]string `yaml:"departments"` // department -> clinic location id
	Scheduler         SchedulerYAML     `yaml:"scheduler"`
}

const (
	defaultMoveMinutes   = 3
	defaultMaxDailyUsage = 50
	defaultVitalsHistory = 48
	defaultLobby         = "lobby"
)

// LoadWorldConfig reads a world layout from a YAML file. Unknown fields are errors.
func LoadWorldConfig(path string) (WorldConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WorldConfig{}, fmt.Errorf("read world config: %w", err)
	}
	return ParseWorldConfig(data)
}

// ParseWorldConfig decodes YAML with strict field checking and validates the result.
func ParseWorldConfig(data []byte) (WorldConfig, error) {
	var cfg WorldConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return WorldConfig{}, fmt.Errorf("parse world config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return WorldConfig{}, err
	}
	return cfg, nil
}

// Validate checks references, positive sizes, calendar strings and cron expressions.
func (c WorldConfig) Validate() error {
	if _, err := c.startTime(); err != nil {
		return err
	}
	if _, err := c.calendar(); err != nil {
		return err
	}
	if c.MoveMinutes != nil && *c.MoveMinutes < 0 {
		return fmt.Errorf("move_minutes must be >= 0, got %d", *c.MoveMinutes)
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("world config has no locations")
	}
	known := make(map[string]bool, len(c.Locations))
	for _, l := range c.Locations {
		if l.ID == "" {
			return fmt.Errorf("location with empty id")
		}
		if known[l.ID] {
			return fmt.Errorf("location %q: %w", l.ID, ErrDuplicateID)
		}
		if l.Capacity <= 0 {
			return fmt.Errorf("location %q: capacity must be positive, got %d", l.ID, l.Capacity)
		}
		known[l.ID] = true
	}
	for _, l := range c.Locations {
		for _, adj := range l.Adjacent {
			if !known[adj] {
				return fmt.Errorf("location %q adjacent to %q: %w", l.ID, adj, ErrUnknownLocation)
			}
		}
	}
	if !known[c.lobby()] {
		return fmt.Errorf("lobby %q: %w", c.lobby(), ErrUnknownLocation)
	}
	for dept, loc := range c.Departments {
		if !known[loc] {
			return fmt.Errorf("department %q clinic %q: %w", dept, loc, ErrUnknownLocation)
		}
	}
	seen := make(map[string]bool, len(c.Equipment))
	for _, e := range c.Equipment {
		if seen[e.ID] {
			return fmt.Errorf("equipment %q: %w", e.ID, ErrDuplicateID)
		}
		seen[e.ID] = true
		if !known[e.Location] {
			return fmt.Errorf("equipment %q location %q: %w", e.ID, e.Location, ErrUnknownLocation)
		}
		if e.ExamType == "" {
			return fmt.Errorf("equipment %q: empty exam_type", e.ID)
		}
		if e.DurationMinutes <= 0 {
			return fmt.Errorf("equipment %q: duration_minutes must be positive, got %d", e.ID, e.DurationMinutes)
		}
		if e.MaxDailyUsage < 0 {
			return fmt.Errorf("equipment %q: max_daily_usage must be >= 0, got %d", e.ID, e.MaxDailyUsage)
		}
		if e.Maintenance != "" {
			if _, err := ParseMaintenanceSchedule(e.Maintenance); err != nil {
				return fmt.Errorf("equipment %q: %w", e.ID, err)
			}
			if e.MaintenanceMinutes <= 0 {
				return fmt.Errorf("equipment %q: maintenance_minutes must be positive with a schedule", e.ID)
			}
		}
	}
	if r := c.Scheduler.BottleneckUsageRatio; r != nil && (*r <= 0 || *r > 1) {
		return fmt.Errorf("bottleneck_usage_ratio must be in (0, 1], got %g", *r)
	}
	return nil
}

func (c WorldConfig) startTime() (time.Time, error) {
	if c.StartTime == "" {
		return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(time.RFC3339, c.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("start_time %q: %w", c.StartTime, err)
	}
	return t, nil
}

func (c WorldConfig) calendar() (Calendar, error) {
	cal := DefaultCalendar()
	fields := []struct {
		raw string
		dst *TimeOfDay
	}{
		{c.Calendar.Open, &cal.Open},
		{c.Calendar.Close, &cal.Close},
		{c.Calendar.BreakStart, &cal.BreakStart},
		{c.Calendar.BreakEnd, &cal.BreakEnd},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		tod, err := ParseTimeOfDay(f.raw)
		if err != nil {
			return Calendar{}, fmt.Errorf("calendar: %w", err)
		}
		*f.dst = tod
	}
	if cal.Close <= cal.Open {
		return Calendar{}, fmt.Errorf("calendar: close %s must be after open %s", cal.Close, cal.Open)
	}
	if cal.BreakEnd < cal.BreakStart {
		return Calendar{}, fmt.Errorf("calendar: break end %s before break start %s", cal.BreakEnd, cal.BreakStart)
	}
	return cal, nil
}

func (c WorldConfig) lobby() string {
	if c.Lobby == "" {
		return defaultLobby
	}
	return c.Lobby
}

func (c WorldConfig) moveCost() time.Duration {
	if c.MoveMinutes == nil {
		return defaultMoveMinutes * time.Minute
	}
	return time.Duration(*c.MoveMinutes) * time.Minute
}

func (c WorldConfig) moveAdvancesClock() bool {
	return c.MoveAdvancesClock == nil || *c.MoveAdvancesClock
}

func (c WorldConfig) vitalsHistory() int {
	if c.VitalsHistory <= 0 {
		return defaultVitalsHistory
	}
	return c.VitalsHistory
}

func (c WorldConfig) schedulerConfig() SchedulerConfig {
	sc := DefaultSchedulerConfig()
	if v := c.Scheduler.HotspotQueueLength; v != nil {
		sc.HotspotQueueLength = *v
	}
	if v := c.Scheduler.HotspotWaitMinutes; v != nil {
		sc.HotspotWait = time.Duration(*v) * time.Minute
	}
	if v := c.Scheduler.BottleneckUsageRatio; v != nil {
		sc.BottleneckUsageRatio = *v
	}
	if v := c.Scheduler.GateByBusinessHours; v != nil {
		sc.GateByBusinessHours = *v
	}
	return sc
}

func (c WorldConfig) locations() []Location {
	out := make([]Location, 0, len(c.Locations))
	for _, l := range c.Locations {
		name := l.Name
		if name == "" {
			name = l.ID
		}
		out = append(out, Location{
			ID: l.ID, Name: name, Department: l.Department, Capacity: l.Capacity,
			Adjacent: l.Adjacent, Actions: l.Actions, BusinessHoursOnly: l.BusinessHoursOnly,
		})
	}
	return out
}

func (c WorldConfig) equipment() []EquipmentSpec {
	out := make([]EquipmentSpec, 0, len(c.Equipment))
	for _, e := range c.Equipment {
		limit := e.MaxDailyUsage
		if limit == 0 {
			limit = defaultMaxDailyUsage
		}
		name := e.Name
		if name == "" {
			name = e.ID
		}
		out = append(out, EquipmentSpec{
			ID: e.ID, Name: name, LocationID: e.Location, ExamType: e.ExamType,
			Duration: time.Duration(e.DurationMinutes) * time.Minute, MaxDailyUsage: limit,
			MaintenanceCron: e.Maintenance, MaintenanceLimit: time.Duration(e.MaintenanceMinutes) * time.Minute,
		})
	}
	return out
}

// DefaultWorldConfig is the built-in hospital: a lobby, triage, four clinics,
// four business-hours diagnostic areas, a pharmacy and twelve devices.
func DefaultWorldConfig() WorldConfig {
	loc := func(id, name, dept string, capacity int, gated bool, actions []string, adjacent ...string) LocationConfig {
		return LocationConfig{ID: id, Name: name, Department: dept, Capacity: capacity,
			BusinessHoursOnly: gated, Actions: actions, Adjacent: adjacent}
	}
	clinic := []string{"consult", "examine", "prescribe", "order_test"}
	dev := func(id, name, location, exam string, minutes int) EquipmentConfig {
		return EquipmentConfig{ID: id, Name: name, Location: location, ExamType: exam,
			DurationMinutes: minutes, MaxDailyUsage: defaultMaxDailyUsage}
	}
	return WorldConfig{
		StartTime: "2024-01-01T08:00:00Z",
		Calendar:  CalendarConfig{Open: "08:00", Close: "18:00", BreakStart: "12:00", BreakEnd: "13:30"},
		Lobby:     defaultLobby,
		Locations: []LocationConfig{
			loc("lobby", "Lobby", "lobby", 50, false, []string{"register", "wait"},
				"triage", "internal_medicine", "surgery", "gastro", "neuro", "pharmacy"),
			loc("triage", "Triage", "triage", 3, false, []string{"triage", "consult"},
				"lobby"),
			loc("internal_medicine", "Internal Medicine Clinic", "internal_medicine", 10, false, clinic,
				"lobby", "lab", "imaging"),
			loc("surgery", "Surgery Clinic", "surgery", 10, false, clinic,
				"lobby", "lab", "imaging"),
			loc("gastro", "Gastroenterology Clinic", "gastro", 10, false, clinic,
				"lobby", "lab", "imaging", "endoscopy"),
			loc("neuro", "Neurology Clinic", "neuro", 2, false, clinic,
				"lobby", "lab", "imaging", "neurophysiology"),
			loc("lab", "Laboratory", "lab", 10, true, []string{"blood_test", "wait"},
				"internal_medicine", "surgery", "gastro", "neuro"),
			loc("imaging", "Imaging Center", "imaging", 5, true, []string{"xray", "ct", "mri", "ultrasound"},
				"internal_medicine", "surgery", "gastro", "neuro"),
			loc("endoscopy", "Endoscopy Suite", "endoscopy", 3, true, []string{"endoscopy", "colonoscopy"},
				"gastro"),
			loc("neurophysiology", "Neurophysiology Lab", "neurophysiology", 3, true, []string{"eeg", "emg"},
				"neuro"),
			loc("pharmacy", "Pharmacy", "pharmacy", 10, false, []string{"get_medicine", "wait"},
				"lobby"),
		},
		Equipment: []EquipmentConfig{
			dev("xray_1", "X-Ray 1", "imaging", "xray", 15),
			dev("ct_1", "CT Scanner 1", "imaging", "ct", 30),
			dev("mri_1", "MRI 1", "imaging", "mri", 45),
			dev("ultrasound_1", "Ultrasound 1", "imaging", "ultrasound", 20),
			dev("blood_analyzer_1", "Blood Analyzer 1", "lab", "blood_test", 20),
			dev("biochem_analyzer_1", "Biochemistry Analyzer 1", "lab", "biochemistry", 25),
			dev("endoscope_1", "Endoscope 1", "endoscopy", "endoscopy", 30),
			dev("colonoscope_1", "Colonoscope 1", "endoscopy", "colonoscopy", 45),
			dev("eeg_1", "EEG 1", "neurophysiology", "eeg", 40),
			dev("emg_1", "EMG 1", "neurophysiology", "emg", 30),
			dev("ecg_1", "ECG 1", "internal_medicine", "ecg", 10),
			dev("ecg_2", "ECG 2", "surgery", "ecg", 10),
		},
		Departments: map[string]string{
			"internal_medicine": "internal_medicine",
			"surgery":           "surgery",
			"gastro":            "gastro",
			"neuro":             "neuro",
		},
	}
}
