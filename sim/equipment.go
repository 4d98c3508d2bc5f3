// Implements Equipment, the device record owned by the EquipmentScheduler.

package sim

import "time"

// EquipmentStatus is the state of one device.
type EquipmentStatus string

const (
	StatusAvailable   EquipmentStatus = "available"
	StatusBusy        EquipmentStatus = "busy"
	StatusMaintenance EquipmentStatus = "maintenance"
)

// QueueEntry is one patient waiting for a device.
type QueueEntry struct {
	PatientID  string
	Priority   int // smaller is more urgent
	EnqueuedAt time.Time
	seq        uint64
}

// Equipment is a shared diagnostic device.
// Invariants (checked by the scheduler after every transition):
//   - Status == StatusBusy iff Occupant != "" and BusyUntil is after now
//   - Status == StatusMaintenance iff MaintenanceUntil is after now
type Equipment struct {
	ID               string
	Name             string
	LocationID       string
	ExamType         string
	Duration         time.Duration
	MaxDailyUsage    int
	Status           EquipmentStatus
	Occupant         string
	BusyUntil        time.Time
	MaintenanceUntil time.Time
	DailyUsage       int
	TotalUsage       int

	queue        EquipmentQueue
	reservations map[TimeOfDay]string // slot label -> patient id
	plan         *maintenancePlan
}

// EquipmentSpec describes a device at construction time.
type EquipmentSpec struct {
	ID            string
	Name          string
	LocationID    string
	ExamType      string
	Duration      time.Duration
	MaxDailyUsage int
	// MaintenanceCron is an optional standard 5-field cron expression for recurring maintenance.
	MaintenanceCron  string
	MaintenanceLimit time.Duration
}

// EquipmentStatusView is a read-only snapshot of a device.
type EquipmentStatusView struct {
	ID               string
	Name             string
	LocationID       string
	ExamType         string
	Status           EquipmentStatus
	Occupant         string
	BusyUntil        time.Time
	MaintenanceUntil time.Time
	DailyUsage       int
	MaxDailyUsage    int
	Queue            []QueueEntry
	Reservations     map[string]string // "HH:MM" -> patient id
	EstimatedWait    time.Duration
}

func newEquipment(spec EquipmentSpec) *Equipment {
	return &Equipment{
		ID:            spec.ID,
		Name:          spec.Name,
		LocationID:    spec.LocationID,
		ExamType:      spec.ExamType,
		Duration:      spec.Duration,
		MaxDailyUsage: spec.MaxDailyUsage,
		Status:        StatusAvailable,
		reservations:  make(map[TimeOfDay]string),
	}
}

// inService reports whether the device can take work at all today.
func (e *Equipment) inService() bool {
	return e.Status != StatusMaintenance && e.DailyUsage < e.MaxDailyUsage
}

func (e *Equipment) free() bool {
	return e.Status == StatusAvailable && e.DailyUsage < e.MaxDailyUsage
}

// estimatedWait is the time until a newly queued patient could start:
// remaining exam time plus one exam per queued patient ahead.
func (e *Equipment) estimatedWait(now time.Time) time.Duration {
	var wait time.Duration
	switch e.Status {
	case StatusBusy:
		if e.BusyUntil.After(now) {
			wait = e.BusyUntil.Sub(now)
		}
	case StatusMaintenance:
		if e.MaintenanceUntil.After(now) {
			wait = e.MaintenanceUntil.Sub(now)
		}
	}
	return wait + time.Duration(e.queue.Len())*e.Duration
}

func (e *Equipment) start(patientID string, at time.Time) {
	e.Status = StatusBusy
	e.Occupant = patientID
	e.BusyUntil = at.Add(e.Duration)
	e.DailyUsage++
	e.TotalUsage++
}

func (e *Equipment) view(now time.Time) EquipmentStatusView {
	res := make(map[string]string, len(e.reservations))
	for slot, pid := range e.reservations {
		res[slot.String()] = pid
	}
	return EquipmentStatusView{
		ID:               e.ID,
		Name:             e.Name,
		LocationID:       e.LocationID,
		ExamType:         e.ExamType,
		Status:           e.Status,
		Occupant:         e.Occupant,
		BusyUntil:        e.BusyUntil,
		MaintenanceUntil: e.MaintenanceUntil,
		DailyUsage:       e.DailyUsage,
		MaxDailyUsage:    e.MaxDailyUsage,
		Queue:            e.queue.Snapshot(),
		Reservations:     res,
		EstimatedWait:    e.estimatedWait(now),
	}
}
