// Package coordinator keeps the staff/patient ledger: doctors, patient
// sessions, per-department wait lists and multi-department consultations.
//
// Department priority is descending: a larger value is more urgent. This is
// the inverse of the equipment queues in package sim.
package coordinator

import (
	"time"

	"github.com/GoitHT/patient-agent-sub001/sim"
)

// DoctorStatus is the state of a doctor.
type DoctorStatus string

const (
	DoctorAvailable  DoctorStatus = "available"
	DoctorBusy       DoctorStatus = "busy"
	DoctorConsulting DoctorStatus = "consulting"
	DoctorOffline    DoctorStatus = "offline"
)

// SessionStatus is the state of a patient session.
type SessionStatus string

const (
	StatusRegistered      SessionStatus = "registered"
	StatusWaiting         SessionStatus = "waiting"
	StatusInConsult       SessionStatus = "in_consult"
	StatusAwaitingLab     SessionStatus = "awaiting_lab"
	StatusAwaitingImaging SessionStatus = "awaiting_imaging"
	StatusDischarged      SessionStatus = "discharged"
)

// Doctor is a DoctorResource.
type Doctor struct {
	ID             string
	Name           string
	Department     string
	Status         DoctorStatus
	CurrentPatient string
	ServedToday    int
	ServedTotal    int
}

// PatientInfo is the descriptive part of a patient record.
type PatientInfo struct {
	Name           string
	Age            int
	Gender         string
	ChiefComplaint string
}

// Session is a PatientSession. Values returned by the Coordinator are copies.
type Session struct {
	ID             string
	Info           PatientInfo
	Department     string
	Priority       int
	Emergency      bool
	Status         SessionStatus
	RegisteredAt   time.Time
	EnqueuedAt     time.Time
	AssignedDoctor string
	LastDoctor     string
	Consultants    []string
	LabReady       bool
	ImagingReady   bool
	Visits         int
	DischargedAt   time.Time
}

// Assignment pairs a patient with a doctor.
type Assignment struct {
	PatientID  string
	DoctorID   string
	Department string
	At         time.Time
}

// World is the part of sim.World the coordinator depends on.
type World interface {
	Now() time.Time
	Lobby() string
	AddAgent(id string, kind sim.AgentKind, locationID string) error
	RemoveAgent(id string) (*sim.PhysicalState, error)
	IsCritical(id string) bool
	OnDayBoundary(fn func(sim.DayBoundary))
}

func (s *Session) clone() Session {
	c := *s
	c.Consultants = append([]string(nil), s.Consultants...)
	return c
}
