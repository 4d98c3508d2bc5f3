package workload

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/GoitHT/patient-agent-sub001/sim"
	"github.com/GoitHT/patient-agent-sub001/sim/coordinator"
	"github.com/GoitHT/patient-agent-sub001/sim/workflow"
)

const (
	defaultLabExam     = "blood_test"
	defaultImagingExam = "xray"
)

// Scenario is a list of patient cases loaded from YAML.
type Scenario struct {
	Seed     int64      `yaml:"seed"`
	Patients []CaseSpec `yaml:"patients"`
}

// CaseSpec is one patient case.
type CaseSpec struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	Age            int           `yaml:"age"`
	Gender         string        `yaml:"gender"`
	Department     string        `yaml:"dept"`
	Priority       int           `yaml:"priority,omitempty"` // 0 = triage from chief_complaint
	ChiefComplaint string        `yaml:"chief_complaint"`
	Symptoms       []SymptomSpec `yaml:"symptoms"`
	NeedsLab       bool          `yaml:"needs_lab"`
	LabExam        string        `yaml:"lab_exam,omitempty"`
	NeedsImaging   bool          `yaml:"needs_imaging"`
	ImagingExam    string        `yaml:"imaging_exam,omitempty"`
	FollowUp       bool          `yaml:"follow_up"`
}

// SymptomSpec is the YAML form of a presenting symptom.
type SymptomSpec struct {
	Name        string  `yaml:"name"`
	Severity    float64 `yaml:"severity"`
	Progression float64 `yaml:"progression"` // severity points per hour
}

// LoadScenario reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &s, nil
}

// Validate checks every case. departments lists the known department names;
// nil skips the department check.
func (s *Scenario) Validate(departments []string) error {
	if len(s.Patients) == 0 {
		return fmt.Errorf("scenario has no patients")
	}
	known := make(map[string]bool, len(departments))
	for _, d := range departments {
		known[d] = true
	}
	seen := make(map[string]bool, len(s.Patients))
	for i, c := range s.Patients {
		prefix := fmt.Sprintf("patients[%d]", i)
		if c.ID == "" {
			return fmt.Errorf("%s: empty id", prefix)
		}
		if seen[c.ID] {
			return fmt.Errorf("%s: id %q: %w", prefix, c.ID, sim.ErrDuplicateID)
		}
		seen[c.ID] = true
		if departments != nil && !known[c.Department] {
			return fmt.Errorf("%s: unknown dept %q", prefix, c.Department)
		}
		if c.Priority < 0 || c.Priority > sim.MaxDepartmentPriority {
			return fmt.Errorf("%s: priority must be in [0, %d], got %d", prefix, sim.MaxDepartmentPriority, c.Priority)
		}
		if c.Age < 0 {
			return fmt.Errorf("%s: age must be non-negative, got %d", prefix, c.Age)
		}
		for j, sym := range c.Symptoms {
			sp := fmt.Sprintf("%s.symptoms[%d]", prefix, j)
			if sym.Name == "" {
				return fmt.Errorf("%s: empty name", sp)
			}
			if math.IsNaN(sym.Severity) || sym.Severity < 0 || sym.Severity > 10 {
				return fmt.Errorf("%s: severity must be in [0, 10], got %f", sp, sym.Severity)
			}
			if math.IsNaN(sym.Progression) || math.IsInf(sym.Progression, 0) {
				return fmt.Errorf("%s: progression must be a finite number, got %f", sp, sym.Progression)
			}
		}
	}
	return nil
}

// WorkflowPatients converts the cases to workflow patients. Cases without a
// priority are triaged from their chief complaint with the scenario seed.
func (s *Scenario) WorkflowPatients() []workflow.Patient {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(s.Seed))
	triage := rng.ForSubsystem(sim.SubsystemTriage)
	out := make([]workflow.Patient, 0, len(s.Patients))
	for _, c := range s.Patients {
		p := workflow.Patient{
			ID: c.ID,
			Info: coordinator.PatientInfo{
				Name: c.Name, Age: c.Age, Gender: c.Gender, ChiefComplaint: c.ChiefComplaint,
			},
			Department: c.Department,
			Priority:   c.Priority,
			FollowUp:   c.FollowUp,
		}
		if p.Priority == 0 {
			p.Priority = TriagePriority(c.ChiefComplaint, triage)
		}
		if c.NeedsLab || c.LabExam != "" {
			p.LabExam = orDefault(c.LabExam, defaultLabExam)
		}
		if c.NeedsImaging || c.ImagingExam != "" {
			p.ImagingExam = orDefault(c.ImagingExam, defaultImagingExam)
		}
		for _, sym := range c.Symptoms {
			p.Symptoms = append(p.Symptoms, workflow.SymptomSpec{
				Name: sym.Name, Severity: sym.Severity, Rate: sym.Progression,
			})
		}
		out = append(out, p)
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
