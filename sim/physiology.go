// Implements PhysicalState: per-agent symptom and vital-sign evolution over
// simulated time, treatment effects and consciousness assessment.

package sim

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Trend is the direction of a symptom's last change.
type Trend string

const (
	TrendStable    Trend = "stable"
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
)

// Consciousness is an ordered level: Alert < Drowsy < Critical.
type Consciousness int

const (
	Alert Consciousness = iota
	Drowsy
	Critical
)

func (c Consciousness) String() string {
	switch c {
	case Alert:
		return "alert"
	case Drowsy:
		return "drowsy"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

const (
	maxLevel = 10.0
	// minEvolveStep is the smallest elapsed time that triggers evolution; shorter gaps accumulate.
	minEvolveStep = 6 * time.Minute
	// trendThreshold is the severity change needed to flag a trend.
	trendThreshold = 0.5
	// severeSymptom is the severity above which a symptom counts as high-severity.
	severeSymptom = 8.0
	// untreatedAcceleration applies to untreated symptoms already above acceleratingSeverity.
	untreatedAcceleration = 1.5
	acceleratingSeverity  = 7.0
	// loadFloor is subtracted from each severity before it drives vitals.
	loadFloor = 3.0
)

// SeverityPoint is one entry of a symptom's history.
type SeverityPoint struct {
	At       time.Time
	Severity float64
}

// Symptom is one tracked complaint.
type Symptom struct {
	Name            string
	Severity        float64 // [0, 10]
	ProgressionRate float64 // severity units per simulated hour
	Trend           Trend
	Treated         bool
	Effectiveness   float64 // of the medication treating it, [0, 1]
	History         []SeverityPoint
}

// VitalRange is a closed interval of values.
type VitalRange struct {
	Min float64
	Max float64
}

// Contains reports whether v is within the range.
func (r VitalRange) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// VitalReading is one entry of a vital's history.
type VitalReading struct {
	At    time.Time
	Value float64
}

// VitalSign is one measured vital.
type VitalSign struct {
	Name    string
	Value   float64
	Unit    string
	Normal  VitalRange
	History []VitalReading

	baseline    float64
	coefficient float64 // change per unit of symptom load
}

// Status classifies the current value against the normal range.
func (v VitalSign) Status() string {
	return ClassifyVital(v.Value, v.Normal)
}

// ClassifyVital maps a value onto low / slightly low / normal / slightly high / high / severely high.
func ClassifyVital(value float64, normal VitalRange) string {
	switch {
	case value < normal.Min*0.9:
		return "low"
	case value < normal.Min:
		return "slightly low"
	case value <= normal.Max:
		return "normal"
	case value <= normal.Max*1.1:
		return "slightly high"
	case value <= normal.Max*1.25:
		return "high"
	default:
		return "severely high"
	}
}

type vitalDefault struct {
	unit        string
	value       float64
	normal      VitalRange
	coefficient float64
	critical    VitalRange // outside is critical; zero means no hard bound
}

// vitalDefaults are adult resting values and their response to symptom load.
var vitalDefaults = map[string]vitalDefault{
	"heart_rate":        {unit: "bpm", value: 75, normal: VitalRange{60, 100}, coefficient: 2.5, critical: VitalRange{40, 150}},
	"bp_systolic":       {unit: "mmHg", value: 120, normal: VitalRange{90, 140}, coefficient: 1.5, critical: VitalRange{80, 180}},
	"bp_diastolic":      {unit: "mmHg", value: 80, normal: VitalRange{60, 90}, coefficient: 0.8},
	"temperature":       {unit: "°C", value: 36.5, normal: VitalRange{36, 37.5}, coefficient: 0.12, critical: VitalRange{35, 40}},
	"respiratory_rate":  {unit: "/min", value: 16, normal: VitalRange{12, 20}, coefficient: 0.6},
	"oxygen_saturation": {unit: "%", value: 98, normal: VitalRange{95, 100}, coefficient: -0.4, critical: VitalRange{90, math.Inf(1)}},
}

// VitalNames returns the names of the standard vitals, sorted.
func VitalNames() []string {
	names := make([]string, 0, len(vitalDefaults))
	for n := range vitalDefaults {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Medication is an administered drug.
type Medication struct {
	Name          string
	Effectiveness float64
	At            time.Time
}

// Treatment is an audit entry; it does not change severities.
type Treatment struct {
	Kind string
	Note string
	At   time.Time
}

// PhysicalState is one agent's physiology. Safe for concurrent use.
type PhysicalState struct {
	mu            sync.Mutex
	agentID       string
	energy        float64
	pain          float64
	consciousness Consciousness
	symptoms      map[string]*Symptom
	vitals        map[string]*VitalSign
	medications   []Medication
	treatments    []Treatment
	workload      float64
	served        int
	last          time.Time
	historyLimit  int
}

// NewPhysicalState returns a rested, symptom-free state with standard vitals at now.
func NewPhysicalState(agentID string, now time.Time, historyLimit int) *PhysicalState {
	if historyLimit <= 0 {
		historyLimit = 48
	}
	ps := &PhysicalState{
		agentID:      agentID,
		energy:       maxLevel,
		symptoms:     make(map[string]*Symptom),
		vitals:       make(map[string]*VitalSign, len(vitalDefaults)),
		last:         now,
		historyLimit: historyLimit,
	}
	for name, d := range vitalDefaults {
		ps.vitals[name] = &VitalSign{
			Name: name, Value: d.value, Unit: d.unit, Normal: d.normal,
			History:  []VitalReading{{At: now, Value: d.value}},
			baseline: d.value, coefficient: d.coefficient,
		}
	}
	return ps
}

// AgentID returns the owning agent.
func (ps *PhysicalState) AgentID() string { return ps.agentID }

// AddSymptom creates or overwrites a symptom. Severity is clamped to [0, 10].
func (ps *PhysicalState) AddSymptom(name string, severity, progressionRate float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	sev := clamp(severity, 0, maxLevel)
	ps.symptoms[name] = &Symptom{
		Name:            name,
		Severity:        sev,
		ProgressionRate: progressionRate,
		Trend:           TrendStable,
		History:         []SeverityPoint{{At: ps.last, Severity: sev}},
	}
	ps.refreshLocked(ps.last)
}

// UpdateSymptom sets a symptom's severity, creating it with zero progression if missing.
func (ps *PhysicalState) UpdateSymptom(name string, severity float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	s, ok := ps.symptoms[name]
	if !ok {
		s = &Symptom{Name: name, Trend: TrendStable}
		ps.symptoms[name] = s
	}
	prev := s.Severity
	s.Severity = clamp(severity, 0, maxLevel)
	s.Trend = trendOf(s.Severity - prev)
	ps.appendSeverityLocked(s, ps.last)
	ps.refreshLocked(ps.last)
}

// SetVital overrides a vital's current value. The override persists as an
// offset on top of symptom-driven changes. Unknown names get a generic range
// centered on the value.
func (ps *PhysicalState) SetVital(name string, value float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	v, ok := ps.vitals[name]
	if !ok {
		v = &VitalSign{Name: name, Normal: VitalRange{value * 0.8, value * 1.2}}
		ps.vitals[name] = v
	}
	v.baseline = value - v.coefficient*ps.symptomLoadLocked()
	v.Value = value
	ps.appendVitalLocked(v, ps.last)
	ps.consciousness = ps.assessLocked()
}

// Advance evolves the state to the given time. Gaps shorter than six
// simulated minutes are skipped and accumulate into the next call. Reports
// whether evolution happened.
func (ps *PhysicalState) Advance(to time.Time) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	elapsed := to.Sub(ps.last)
	if elapsed < minEvolveStep {
		return false
	}
	hours := elapsed.Hours()
	total := 0.0
	for _, s := range ps.symptoms {
		total += s.Severity
	}
	for _, name := range ps.symptomNamesLocked() {
		s := ps.symptoms[name]
		prev := s.Severity
		var delta float64
		switch {
		case s.Treated:
			delta = -s.ProgressionRate * s.Effectiveness * hours
		case s.Severity > acceleratingSeverity:
			delta = s.ProgressionRate * hours * untreatedAcceleration
		default:
			delta = s.ProgressionRate * hours
		}
		s.Severity = clamp(s.Severity+delta, 0, maxLevel)
		s.Trend = trendOf(s.Severity - prev)
		ps.appendSeverityLocked(s, to)
	}
	ps.energy = clamp(ps.energy-hours*(1+total/50), 0, maxLevel)
	ps.last = to
	ps.refreshLocked(to)
	return true
}

// ApplyMedication marks every untreated symptom as treated with the given
// effectiveness (clamped to [0, 1]) and records the medication.
func (ps *PhysicalState) ApplyMedication(name string, effectiveness float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	eff := clamp(effectiveness, 0, 1)
	for _, s := range ps.symptoms {
		if !s.Treated {
			s.Treated = true
			s.Effectiveness = eff
		} else if eff > s.Effectiveness {
			s.Effectiveness = eff
		}
	}
	ps.medications = append(ps.medications, Medication{Name: name, Effectiveness: eff, At: ps.last})
}

// RecordTreatment appends to the treatment log.
func (ps *PhysicalState) RecordTreatment(kind, note string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.treatments = append(ps.treatments, Treatment{Kind: kind, Note: note, At: ps.last})
}

// ApplyRest restores energy in proportion to duration and quality (0..1).
func (ps *PhysicalState) ApplyRest(d time.Duration, quality float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.energy = clamp(ps.energy+d.Hours()*clamp(quality, 0, 1)*3, 0, maxLevel)
}

// AddWorkload drains a staff member's energy and accumulates workload.
// complexity scales the drain; 1 is a routine consultation.
func (ps *PhysicalState) AddWorkload(d time.Duration, complexity float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if complexity < 0 {
		complexity = 0
	}
	units := d.Hours() * complexity
	ps.workload += units
	ps.energy = clamp(ps.energy-units*1.5, 0, maxLevel)
}

// Efficiency is a staff member's working efficiency in [0.3, 1].
func (ps *PhysicalState) Efficiency() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	eff := (ps.energy / maxLevel) * (1 - 0.05*math.Min(ps.workload, 10))
	return clamp(eff, 0.3, 1)
}

// ServePatient counts one more patient served by a staff member.
func (ps *PhysicalState) ServePatient() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.served++
}

// AssessConsciousness classifies the current state.
func (ps *PhysicalState) AssessConsciousness() Consciousness {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.assessLocked()
}

// CheckCritical reports the critical tier or any vital past a hard bound.
func (ps *PhysicalState) CheckCritical() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.criticalLocked()
}

// AverageSeverity is the mean severity over all symptoms, 0 without symptoms.
func (ps *PhysicalState) AverageSeverity() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.symptoms) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range ps.symptoms {
		total += s.Severity
	}
	return total / float64(len(ps.symptoms))
}

// Symptom returns a copy of one symptom.
func (ps *PhysicalState) Symptom(name string) (Symptom, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	s, ok := ps.symptoms[name]
	if !ok {
		return Symptom{}, false
	}
	return copySymptom(s), true
}

// Vital returns a copy of one vital sign.
func (ps *PhysicalState) Vital(name string) (VitalSign, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	v, ok := ps.vitals[name]
	if !ok {
		return VitalSign{}, false
	}
	return copyVital(v), true
}

// Energy returns the current energy level in [0, 10].
func (ps *PhysicalState) Energy() float64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.energy
}

// PhysicalSummary is a point-in-time copy of a PhysicalState.
type PhysicalSummary struct {
	AgentID       string
	At            time.Time
	Energy        float64
	Pain          float64
	Consciousness Consciousness
	Critical      bool
	Symptoms      []Symptom
	Vitals        []VitalSign
	Medications   []Medication
	Treatments    []Treatment
	Workload      float64
	Served        int
}

// Summary returns a copy of the whole state. Symptoms and vitals are sorted by name.
func (ps *PhysicalState) Summary() PhysicalSummary {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := PhysicalSummary{
		AgentID:       ps.agentID,
		At:            ps.last,
		Energy:        ps.energy,
		Pain:          ps.pain,
		Consciousness: ps.consciousness,
		Critical:      ps.criticalLocked(),
		Medications:   append([]Medication(nil), ps.medications...),
		Treatments:    append([]Treatment(nil), ps.treatments...),
		Workload:      ps.workload,
		Served:        ps.served,
	}
	for _, name := range ps.symptomNamesLocked() {
		out.Symptoms = append(out.Symptoms, copySymptom(ps.symptoms[name]))
	}
	names := make([]string, 0, len(ps.vitals))
	for n := range ps.vitals {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		out.Vitals = append(out.Vitals, copyVital(ps.vitals[n]))
	}
	return out
}

// refreshLocked rederives pain, vitals and consciousness from the symptoms.
func (ps *PhysicalState) refreshLocked(at time.Time) {
	pain := 0.0
	for _, s := range ps.symptoms {
		lower := strings.ToLower(s.Name)
		if (strings.Contains(lower, "pain") || strings.Contains(lower, "ache")) && s.Severity > pain {
			pain = s.Severity
		}
	}
	ps.pain = clamp(pain, 0, maxLevel)

	load := ps.symptomLoadLocked()
	for _, v := range ps.vitals {
		next := v.baseline + v.coefficient*load
		if next != v.Value || len(v.History) == 0 {
			v.Value = next
			ps.appendVitalLocked(v, at)
		}
	}
	ps.consciousness = ps.assessLocked()
}

// symptomLoadLocked is the sum of severities above the floor.
func (ps *PhysicalState) symptomLoadLocked() float64 {
	load := 0.0
	for _, s := range ps.symptoms {
		load += math.Max(0, s.Severity-loadFloor)
	}
	return load
}

func (ps *PhysicalState) assessLocked() Consciousness {
	abnormal := 0
	for _, v := range ps.vitals {
		if !v.Normal.Contains(v.Value) {
			abnormal++
		}
	}
	severe := 0
	for _, s := range ps.symptoms {
		if s.Severity > severeSymptom {
			severe++
		}
	}
	switch {
	case (abnormal >= 2 && severe >= 2) || abnormal >= 4 || severe >= 3:
		return Critical
	case abnormal+severe >= 2:
		return Drowsy
	default:
		return Alert
	}
}

func (ps *PhysicalState) criticalLocked() bool {
	if ps.assessLocked() == Critical {
		return true
	}
	for name, v := range ps.vitals {
		d, ok := vitalDefaults[name]
		if !ok || d.critical == (VitalRange{}) {
			continue
		}
		if !d.critical.Contains(v.Value) {
			return true
		}
	}
	return false
}

func (ps *PhysicalState) symptomNamesLocked() []string {
	names := make([]string, 0, len(ps.symptoms))
	for n := range ps.symptoms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (ps *PhysicalState) appendSeverityLocked(s *Symptom, at time.Time) {
	s.History = append(s.History, SeverityPoint{At: at, Severity: s.Severity})
	if len(s.History) > ps.historyLimit {
		s.History = s.History[len(s.History)-ps.historyLimit:]
	}
}

func (ps *PhysicalState) appendVitalLocked(v *VitalSign, at time.Time) {
	v.History = append(v.History, VitalReading{At: at, Value: v.Value})
	if len(v.History) > ps.historyLimit {
		v.History = v.History[len(v.History)-ps.historyLimit:]
	}
}

func trendOf(delta float64) Trend {
	switch {
	case delta > trendThreshold:
		return TrendWorsening
	case delta < -trendThreshold:
		return TrendImproving
	default:
		return TrendStable
	}
}

func copySymptom(s *Symptom) Symptom {
	c := *s
	c.History = append([]SeverityPoint(nil), s.History...)
	return c
}

func copyVital(v *VitalSign) VitalSign {
	c := *v
	c.History = append([]VitalReading(nil), v.History...)
	return c
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
