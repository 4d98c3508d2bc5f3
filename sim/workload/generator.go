package workload

import (
	"fmt"
	"sort"

	"github.com/GoitHT/patient-agent-sub001/sim"
	"github.com/GoitHT/patient-agent-sub001/sim/coordinator"
	"github.com/GoitHT/patient-agent-sub001/sim/workflow"
)

type caseTemplate struct {
	complaint string
	symptoms  []SymptomSpec
	lab       string
	imaging   string
	followUp  bool
}

var genericTemplates = []caseTemplate{
	{complaint: "cough and fever for three days",
		symptoms: []SymptomSpec{{"cough", 5, 0.1}, {"fever", 5.5, 0.15}}, lab: "blood_test"},
	{complaint: "fatigue and dizziness",
		symptoms: []SymptomSpec{{"fatigue", 4, 0.05}, {"dizziness", 3.5, 0.05}}},
	{complaint: "routine follow-up, mild discomfort",
		symptoms: []SymptomSpec{{"discomfort", 2, 0.02}}, followUp: true},
}

var templatesByDept = map[string][]caseTemplate{
	"internal_medicine": {
		{complaint: "chest tightness and shortness of breath",
			symptoms: []SymptomSpec{{"chest tightness", 7.5, 0.3}, {"shortness of breath", 7, 0.3}},
			lab:      "blood_test", imaging: "xray"},
		{complaint: "persistent fever with chills",
			symptoms: []SymptomSpec{{"fever", 6.5, 0.2}, {"chills", 4, 0.1}}, lab: "blood_test"},
		{complaint: "palpitations and fatigue",
			symptoms: []SymptomSpec{{"palpitations", 5, 0.1}, {"fatigue", 4, 0.05}}, lab: "ecg"},
	},
	"surgery": {
		{complaint: "suspected fracture of the left wrist",
			symptoms: []SymptomSpec{{"wrist pain", 7, 0.05}, {"swelling", 5, 0.05}}, imaging: "xray"},
		{complaint: "acute right lower abdominal pain",
			symptoms: []SymptomSpec{{"abdominal pain", 7.5, 0.4}, {"nausea", 4, 0.1}},
			lab:      "blood_test", imaging: "ultrasound"},
		{complaint: "wound check after minor surgery",
			symptoms: []SymptomSpec{{"wound ache", 3, 0.02}}, followUp: true},
	},
	"gastro": {
		{complaint: "black stool and upper abdominal discomfort",
			symptoms: []SymptomSpec{{"abdominal pain", 6, 0.2}, {"black stool", 6.5, 0.2}},
			lab:      "blood_test", imaging: "endoscopy"},
		{complaint: "acid reflux and heartburn for weeks",
			symptoms: []SymptomSpec{{"heartburn", 4.5, 0.02}, {"acid reflux", 4, 0.02}}, followUp: true},
		{complaint: "diarrhea and nausea",
			symptoms: []SymptomSpec{{"diarrhea", 5, 0.1}, {"nausea", 4.5, 0.1}}, lab: "biochemistry"},
	},
	"neuro": {
		{complaint: "severe headache with sudden onset",
			symptoms: []SymptomSpec{{"headache", 8, 0.4}, {"nausea", 5, 0.1}}, imaging: "ct"},
		{complaint: "recurrent seizure episodes",
			symptoms: []SymptomSpec{{"seizure", 7, 0.2}, {"confusion", 4, 0.1}}, imaging: "eeg"},
		{complaint: "numbness in both hands",
			symptoms: []SymptomSpec{{"numbness", 4, 0.05}}, lab: "emg", followUp: true},
	},
}

var (
	givenNames  = []string{"Alex", "Sam", "Jordan", "Taylor", "Morgan", "Casey", "Riley", "Jamie", "Avery", "Quinn"}
	familyNames = []string{"Chen", "Li", "Wang", "Zhang", "Liu", "Smith", "Garcia", "Kim", "Singh", "Novak"}
	genders     = []string{"female", "male"}
)

// GeneratePatients draws n cases spread across departments. Deterministic
// given the same seed and department list. IDs are patient_000, patient_001
// and so on.
func GeneratePatients(n int, seed int64, departments []string) ([]workflow.Patient, error) {
	if n <= 0 {
		return nil, nil
	}
	if len(departments) == 0 {
		return nil, fmt.Errorf("generate patients: no departments")
	}
	depts := append([]string(nil), departments...)
	sort.Strings(depts)

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
	draw := rng.ForSubsystem(sim.SubsystemWorkload)
	triage := rng.ForSubsystem(sim.SubsystemTriage)

	out := make([]workflow.Patient, 0, n)
	for i := 0; i < n; i++ {
		dept := depts[draw.Intn(len(depts))]
		templates := templatesByDept[dept]
		if len(templates) == 0 {
			templates = genericTemplates
		}
		tpl := templates[draw.Intn(len(templates))]
		p := workflow.Patient{
			ID: fmt.Sprintf("patient_%03d", i),
			Info: coordinator.PatientInfo{
				Name:           givenNames[draw.Intn(len(givenNames))] + " " + familyNames[draw.Intn(len(familyNames))],
				Age:            18 + draw.Intn(70),
				Gender:         genders[draw.Intn(len(genders))],
				ChiefComplaint: tpl.complaint,
			},
			Department:  dept,
			Priority:    TriagePriority(tpl.complaint, triage),
			LabExam:     tpl.lab,
			ImagingExam: tpl.imaging,
			FollowUp:    tpl.followUp,
		}
		for _, s := range tpl.symptoms {
			// jitter the presenting severity by up to half a point
			sev := s.Severity + (draw.Float64() - 0.5)
			p.Symptoms = append(p.Symptoms, workflow.SymptomSpec{Name: s.Name, Severity: sev, Rate: s.Progression})
		}
		out = append(out, p)
	}
	return out, nil
}
