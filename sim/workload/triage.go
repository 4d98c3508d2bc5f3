package workload

import (
	"math/rand"
	"strings"
)

// Acuity is the keyword band a chief complaint falls into.
type Acuity string

const (
	AcuityUrgent   Acuity = "urgent"
	AcuitySevere   Acuity = "severe"
	AcuityModerate Acuity = "moderate"
	AcuityMinor    Acuity = "minor"
)

var (
	urgentKeywords = []string{
		"chest pain", "chest tightness", "shortness of breath", "dyspnea", "coma",
		"unconscious", "massive bleeding", "uncontrolled bleeding", "shock", "convulsion",
		"seizure", "suffocation", "choking", "severe trauma", "fracture", "severe headache",
	}
	severeKeywords = []string{
		"severe pain", "persistent fever", "high fever", "vomiting blood", "hematemesis",
		"black stool", "melena", "bloody stool", "coughing blood", "hemoptysis", "syncope",
		"fainting", "persistent vomiting", "worsening abdominal pain", "unbearable", "sudden", "acute",
	}
	moderateKeywords = []string{
		"pain", "discomfort", "fever", "cough", "dizziness", "fatigue", "diarrhea",
		"nausea", "acid reflux", "heartburn",
	}
)

// Classify returns the band of a complaint. Bands are checked from the most
// urgent down, so "severe headache" is urgent even though "pain" words are
// moderate.
func Classify(complaint string) Acuity {
	c := strings.ToLower(complaint)
	switch {
	case containsAny(c, urgentKeywords):
		return AcuityUrgent
	case containsAny(c, severeKeywords):
		return AcuitySevere
	case containsAny(c, moderateKeywords):
		return AcuityModerate
	}
	return AcuityMinor
}

// TriagePriority draws a department priority within the complaint's band:
// urgent 9-10, severe 7-8, moderate 5-6, otherwise 3-4. Higher is more urgent.
func TriagePriority(complaint string, rng *rand.Rand) int {
	lo := 3
	switch Classify(complaint) {
	case AcuityUrgent:
		lo = 9
	case AcuitySevere:
		lo = 7
	case AcuityModerate:
		lo = 5
	}
	return lo + rng.Intn(2)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
