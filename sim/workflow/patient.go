// Package workflow runs one patient workflow per worker against a shared
// World and Coordinator.
//
// A workflow registers the patient, waits for a doctor, consults, optionally
// sends the patient out for a lab test or imaging, repeats the consultation
// when results come back or a follow-up is needed, and discharges. Every
// outcome is returned as a Result; a failing workflow never disturbs its
// siblings.
package workflow

import (
	"time"

	"github.com/GoitHT/patient-agent-sub001/sim/coordinator"
)

// SymptomSpec is a presenting symptom. Rate is severity points per hour.
type SymptomSpec struct {
	Name     string
	Severity float64
	Rate     float64
}

// Patient is one case handed to the orchestrator.
type Patient struct {
	ID         string
	Info       coordinator.PatientInfo
	Department string
	Priority   int
	Symptoms   []SymptomSpec

	// LabExam and ImagingExam name exam types; empty means not needed.
	LabExam     string
	ImagingExam string
	FollowUp    bool
}

// Status is the terminal state of a workflow.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Failure reasons carried in Result.Reason.
const (
	ReasonAssignmentTimeout = "assignment_timeout"
	ReasonResultTimeout     = "result_timeout"
	ReasonShutdown          = "shutdown"
	ReasonRegister          = "register_failed"
	ReasonConsult           = "consult_failed"
	ReasonExamRequest       = "exam_request_failed"
	ReasonInternal          = "internal"
)

// StepRecord is one executed step. Start and End are simulated times.
type StepRecord struct {
	Name  string
	Start time.Time
	End   time.Time
	Err   string
}

// Result is the outcome of one workflow.
type Result struct {
	Handle    Handle
	PatientID string
	Status    Status
	Reason    string
	Err       error
	Steps     []StepRecord
	Visits    int
	Start     time.Time
	End       time.Time
}

// Turnaround is the simulated time from registration to the last step.
func (r Result) Turnaround() time.Duration {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start)
}
