package workflow

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a set of workflow results. Turnaround figures are in
// simulated minutes over completed workflows.
type Summary struct {
	Total              int
	Completed          int
	Failed             int
	Reasons            map[string]int
	MeanTurnaround     float64
	StdDevTurnaround   float64
	MaxTurnaround      float64
	MeanVisits         float64
	ExamsPerPatient    float64
	StepFailuresByName map[string]int
}

// Summarize computes a Summary.
func Summarize(results []Result) Summary {
	s := Summary{
		Total:              len(results),
		Reasons:            make(map[string]int),
		StepFailuresByName: make(map[string]int),
	}
	var turnaround, visits []float64
	exams := 0
	for _, r := range results {
		for _, st := range r.Steps {
			if st.Err != "" {
				s.StepFailuresByName[st.Name]++
			}
			if st.Name == "lab" || st.Name == "imaging" {
				exams++
			}
		}
		if r.Status != StatusCompleted {
			s.Failed++
			s.Reasons[r.Reason]++
			continue
		}
		s.Completed++
		m := r.Turnaround().Minutes()
		turnaround = append(turnaround, m)
		visits = append(visits, float64(r.Visits))
		if m > s.MaxTurnaround {
			s.MaxTurnaround = m
		}
	}
	if len(turnaround) > 0 {
		s.MeanTurnaround = stat.Mean(turnaround, nil)
		s.MeanVisits = stat.Mean(visits, nil)
	}
	if len(turnaround) > 1 {
		s.StdDevTurnaround = stat.StdDev(turnaround, nil)
	}
	if s.Total > 0 {
		s.ExamsPerPatient = float64(exams) / float64(s.Total)
	}
	return s
}

// String renders the summary as a short multi-line report.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflows: %d (completed %d, failed %d)\n", s.Total, s.Completed, s.Failed)
	fmt.Fprintf(&b, "turnaround: mean %.1f min, stddev %.1f min, max %.1f min\n",
		s.MeanTurnaround, s.StdDevTurnaround, s.MaxTurnaround)
	fmt.Fprintf(&b, "visits per completed patient: %.2f, exams per patient: %.2f\n", s.MeanVisits, s.ExamsPerPatient)
	reasons := make([]string, 0, len(s.Reasons))
	for r := range s.Reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(&b, "  failed %-20s %d\n", r, s.Reasons[r])
	}
	return b.String()
}
