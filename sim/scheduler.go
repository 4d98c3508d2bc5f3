// Implements the EquipmentScheduler: device selection, per-device priority
// queues, reservations, maintenance and daily usage caps.

package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SchedulerConfig tunes reporting thresholds and gating.
type SchedulerConfig struct {
	HotspotQueueLength   int           // queue length at or above which a device is a hotspot
	HotspotWait          time.Duration // and whose estimated wait is at least this
	BottleneckUsageRatio float64       // daily usage / cap at or above which a device is a bottleneck
	GateByBusinessHours  bool          // reject requests outside business hours
}

// DefaultSchedulerConfig returns the thresholds used by the built-in hospital.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		HotspotQueueLength:   3,
		HotspotWait:          30 * time.Minute,
		BottleneckUsageRatio: 0.8,
		GateByBusinessHours:  true,
	}
}

// RequestOutcome says what happened to an exam request.
type RequestOutcome string

const (
	OutcomeStarted RequestOutcome = "started"
	OutcomeQueued  RequestOutcome = "queued"
)

// RequestResult describes an accepted exam request.
type RequestResult struct {
	Outcome       RequestOutcome
	EquipmentID   string
	LocationID    string
	Position      int       // 1-based queue position when queued
	Start         time.Time // exam start (started) or estimated start (queued)
	End           time.Time // exam end (started only)
	EstimatedWait time.Duration
}

// BestDevice is the device of an exam type with the shortest estimated wait.
type BestDevice struct {
	EquipmentID    string
	Name           string
	LocationID     string
	EstimatedWait  time.Duration
	EstimatedStart time.Time
	QueueLength    int
}

// EquipmentScheduler exclusively owns every Equipment record.
// All mutation happens under mu; the clock is read under mu so that a
// request and the sweep agree on "now".
type EquipmentScheduler struct {
	mu       sync.Mutex
	clock    *Clock
	cfg      SchedulerConfig
	devices  map[string]*Equipment
	order    []string
	byType   map[string][]*Equipment
	recorder Recorder
}

// NewEquipmentScheduler builds a scheduler over the given devices.
func NewEquipmentScheduler(clock *Clock, cfg SchedulerConfig, specs []EquipmentSpec, recorder Recorder) (*EquipmentScheduler, error) {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	s := &EquipmentScheduler{
		clock:    clock,
		cfg:      cfg,
		devices:  make(map[string]*Equipment, len(specs)),
		byType:   make(map[string][]*Equipment),
		recorder: recorder,
	}
	now := clock.Now()
	for _, spec := range specs {
		if _, exists := s.devices[spec.ID]; exists {
			return nil, fmt.Errorf("equipment %q: %w", spec.ID, ErrDuplicateID)
		}
		if spec.Duration <= 0 {
			return nil, fmt.Errorf("equipment %q: duration must be positive", spec.ID)
		}
		if spec.MaxDailyUsage <= 0 {
			return nil, fmt.Errorf("equipment %q: max daily usage must be positive", spec.ID)
		}
		e := newEquipment(spec)
		if spec.MaintenanceCron != "" {
			plan, err := newMaintenancePlan(spec.MaintenanceCron, spec.MaintenanceLimit, now)
			if err != nil {
				return nil, fmt.Errorf("equipment %q: %w", spec.ID, err)
			}
			e.plan = plan
		}
		s.devices[e.ID] = e
		s.order = append(s.order, e.ID)
		s.byType[e.ExamType] = append(s.byType[e.ExamType], e)
	}
	return s, nil
}

// Request asks for an exam of examType. A free in-service device starts the
// exam immediately unless the patient is being examined elsewhere. Otherwise
// the patient joins the queue of the in-service device with the shortest
// estimated wait. A patient already occupying or
// queued on a device of that type gets its existing state back.
//
// priority follows the equipment convention: smaller is more urgent.
func (s *EquipmentScheduler) Request(patientID, examType string, priority int) (RequestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()

	devices, ok := s.byType[examType]
	if !ok {
		return RequestResult{}, fmt.Errorf("exam type %q: %w", examType, ErrUnknownExamType)
	}
	if s.cfg.GateByBusinessHours && !s.clock.Calendar().IsWorking(now) {
		return RequestResult{}, fmt.Errorf("%s requested at %s, hours %s: %w",
			examType, TimeOfDayOf(now), s.clock.Calendar(), ErrOutsideHours)
	}

	for _, e := range devices {
		if e.Status == StatusBusy && e.Occupant == patientID {
			return RequestResult{Outcome: OutcomeStarted, EquipmentID: e.ID, LocationID: e.LocationID,
				Start: e.BusyUntil.Add(-e.Duration), End: e.BusyUntil}, nil
		}
		if pos := e.queue.Position(patientID); pos > 0 {
			return s.queuedResult(e, pos, now), nil
		}
	}

	for _, e := range devices {
		if e.free() && !s.examinedElsewhereLocked(patientID, e, now) {
			e.start(patientID, now)
			logrus.WithFields(logrus.Fields{"patient": patientID, "device": e.ID}).
				Infof("exam started, done at %s", e.BusyUntil.Format("15:04"))
			s.recorder.Record(now, string(EventExamStarted), e.ID, patientID)
			return RequestResult{Outcome: OutcomeStarted, EquipmentID: e.ID, LocationID: e.LocationID,
				Start: now, End: e.BusyUntil}, nil
		}
	}

	target := s.queueTargetLocked(devices, now)
	if target == nil {
		return RequestResult{}, s.unavailableErrLocked(devices, examType)
	}
	pos := target.queue.Enqueue(QueueEntry{PatientID: patientID, Priority: priority, EnqueuedAt: now})
	logrus.WithFields(logrus.Fields{"patient": patientID, "device": target.ID}).
		Infof("exam queued at position %d (priority %d) %s", pos, priority, &target.queue)
	s.recorder.Record(now, string(EventExamQueued), target.ID, fmt.Sprintf("%s position=%d priority=%d", patientID, pos, priority))
	return s.queuedResult(target, pos, now), nil
}

// queueTargetLocked picks the in-service device with the shortest estimated
// wait whose committed work (today's usage plus queue) is under its cap.
func (s *EquipmentScheduler) queueTargetLocked(devices []*Equipment, now time.Time) *Equipment {
	var best *Equipment
	var bestWait time.Duration
	for _, e := range devices {
		if !e.inService() || e.DailyUsage+e.queue.Len() >= e.MaxDailyUsage {
			continue
		}
		w := e.estimatedWait(now)
		if best == nil || w < bestWait {
			best, bestWait = e, w
		}
	}
	return best
}

func (s *EquipmentScheduler) unavailableErrLocked(devices []*Equipment, examType string) error {
	for _, e := range devices {
		if e.Status != StatusMaintenance && e.DailyUsage+e.queue.Len() >= e.MaxDailyUsage {
			return fmt.Errorf("%s on %s (%d/%d): %w", examType, e.ID, e.DailyUsage, e.MaxDailyUsage, ErrDailyCapExceeded)
		}
	}
	for _, e := range devices {
		if e.DailyUsage >= e.MaxDailyUsage {
			return fmt.Errorf("%s on %s (%d/%d): %w", examType, e.ID, e.DailyUsage, e.MaxDailyUsage, ErrDailyCapExceeded)
		}
	}
	return fmt.Errorf("%s: every device under maintenance: %w", examType, ErrDeviceInMaintenance)
}

func (s *EquipmentScheduler) queuedResult(e *Equipment, pos int, now time.Time) RequestResult {
	var wait time.Duration
	switch e.Status {
	case StatusBusy:
		wait = e.BusyUntil.Sub(now)
	case StatusMaintenance:
		wait = e.MaintenanceUntil.Sub(now)
	}
	if wait < 0 {
		wait = 0
	}
	wait += time.Duration(pos-1) * e.Duration
	return RequestResult{Outcome: OutcomeQueued, EquipmentID: e.ID, LocationID: e.LocationID,
		Position: pos, Start: now.Add(wait), EstimatedWait: wait}
}

// Sweep runs the completion sweep at the current time and returns the events it produced.
func (s *EquipmentScheduler) Sweep() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.clock.Now())
}

// sweepLocked completes finished exams, ends elapsed maintenance, honors due
// maintenance plans and starts the next patient on every freed device. A
// device may turn over several times in one sweep; each follow-on start is
// stamped at the previous finish. The sweep is not gated by business hours.
func (s *EquipmentScheduler) sweepLocked(now time.Time) []Event {
	var events []Event
	for _, id := range s.order {
		events = append(events, s.sweepDeviceLocked(s.devices[id], now)...)
	}
	return events
}

func (s *EquipmentScheduler) sweepDeviceLocked(e *Equipment, now time.Time) []Event {
	var events []Event
	// freedAt is when the device last became idle in this sweep; zero means it was idle before.
	var freedAt time.Time
	for {
		switch e.Status {
		case StatusBusy:
			if e.BusyUntil.After(now) {
				return events
			}
			done := ExamCompletion{EquipmentID: e.ID, ExamType: e.ExamType, PatientID: e.Occupant,
				Started: e.BusyUntil.Add(-e.Duration), Finished: e.BusyUntil}
			events = append(events, done)
			logrus.WithFields(logrus.Fields{"patient": e.Occupant, "device": e.ID}).
				Infof("exam completed at %s", done.Finished.Format("15:04"))
			s.recorder.Record(done.Finished, string(EventExamCompleted), e.ID, e.Occupant)
			e.Status = StatusAvailable
			e.Occupant = ""
			freedAt = done.Finished
		case StatusMaintenance:
			if e.MaintenanceUntil.After(now) {
				return events
			}
			events = append(events, MaintenanceWindow{EquipmentID: e.ID, At: e.MaintenanceUntil, Ended: true})
			logrus.Infof("%s maintenance finished at %s", e.ID, e.MaintenanceUntil.Format("15:04"))
			s.recorder.Record(e.MaintenanceUntil, string(EventMaintenanceEnd), e.ID, "")
			e.Status = StatusAvailable
			freedAt = e.MaintenanceUntil
			e.MaintenanceUntil = time.Time{}
		case StatusAvailable:
			at := freedAt
			if at.IsZero() {
				at = now
			}
			if e.plan.due(now) {
				start := e.plan.next
				if start.Before(at) {
					start = at
				}
				e.plan.consume(start)
				s.enterMaintenanceLocked(e, start, e.plan.window)
				events = append(events, MaintenanceWindow{EquipmentID: e.ID, At: start, Until: e.MaintenanceUntil})
				continue
			}
			if e.DailyUsage >= e.MaxDailyUsage {
				return events
			}
			patientID, reserved := s.nextPatientLocked(e, at)
			if patientID == "" {
				return events
			}
			e.start(patientID, at)
			events = append(events, ExamStart{EquipmentID: e.ID, PatientID: patientID, Started: at, Reserved: reserved})
			source := "queue"
			if reserved {
				source = "reservation"
			}
			logrus.WithFields(logrus.Fields{"patient": patientID, "device": e.ID}).
				Infof("exam started from %s, done at %s", source, e.BusyUntil.Format("15:04"))
			s.recorder.Record(at, string(EventExamStarted), e.ID, patientID)
		}
	}
}

// nextPatientLocked consumes the earliest due reservation, or else dequeues
// the first queued patient. Patients still being examined on another device
// at are passed over and keep their reservation or place.
func (s *EquipmentScheduler) nextPatientLocked(e *Equipment, at time.Time) (string, bool) {
	tod := TimeOfDayOf(at)
	var due []TimeOfDay
	for slot, pid := range e.reservations {
		if slot <= tod && !s.examinedElsewhereLocked(pid, e, at) {
			due = append(due, slot)
		}
	}
	if len(due) > 0 {
		sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
		pid := e.reservations[due[0]]
		delete(e.reservations, due[0])
		e.queue.Remove(pid)
		return pid, true
	}
	for _, entry := range e.queue.Snapshot() {
		if !s.examinedElsewhereLocked(entry.PatientID, e, at) {
			e.queue.Remove(entry.PatientID)
			return entry.PatientID, false
		}
	}
	return "", false
}

// examinedElsewhereLocked reports whether patientID occupies a device other
// than e past at.
func (s *EquipmentScheduler) examinedElsewhereLocked(patientID string, e *Equipment, at time.Time) bool {
	for _, id := range s.order {
		other := s.devices[id]
		if other != e && other.Status == StatusBusy && other.Occupant == patientID && other.BusyUntil.After(at) {
			return true
		}
	}
	return false
}

// enterMaintenanceLocked puts e into maintenance until start+d. An exam in
// progress is interrupted and its patient returns to the queue head.
func (s *EquipmentScheduler) enterMaintenanceLocked(e *Equipment, start time.Time, d time.Duration) {
	if e.Status == StatusBusy && e.Occupant != "" {
		logrus.Warnf("%s forced into maintenance while examining %s; patient requeued", e.ID, e.Occupant)
		e.queue.Enqueue(QueueEntry{PatientID: e.Occupant, Priority: -1, EnqueuedAt: e.BusyUntil.Add(-e.Duration)})
		e.DailyUsage--
		e.TotalUsage--
		e.Occupant = ""
		e.BusyUntil = time.Time{}
	}
	e.Status = StatusMaintenance
	e.MaintenanceUntil = start.Add(d)
	logrus.Infof("%s in maintenance until %s", e.ID, e.MaintenanceUntil.Format("15:04"))
	s.recorder.Record(start, string(EventMaintenanceStart), e.ID, "until "+e.MaintenanceUntil.Format(time.RFC3339))
}

// SetMaintenance forces a device into maintenance for d starting at start.
// A window that has already elapsed is ended by the next sweep.
func (s *EquipmentScheduler) SetMaintenance(equipmentID string, start time.Time, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("maintenance duration must be positive, got %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.devices[equipmentID]
	if !ok {
		return fmt.Errorf("equipment %q: %w", equipmentID, ErrUnknownEquipment)
	}
	s.enterMaintenanceLocked(e, start, d)
	return nil
}

// SetMaintenancePlan installs a recurring maintenance schedule on a device,
// replacing any previous plan. An empty expression removes the plan.
func (s *EquipmentScheduler) SetMaintenancePlan(equipmentID, expr string, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.devices[equipmentID]
	if !ok {
		return fmt.Errorf("equipment %q: %w", equipmentID, ErrUnknownEquipment)
	}
	if expr == "" {
		e.plan = nil
		return nil
	}
	plan, err := newMaintenancePlan(expr, window, s.clock.Now())
	if err != nil {
		return fmt.Errorf("equipment %q: %w", equipmentID, err)
	}
	e.plan = plan
	return nil
}

// Reserve books the slot label ("HH:MM") on the first device of examType
// that does not have it yet and returns that device's id.
func (s *EquipmentScheduler) Reserve(patientID, examType, label string) (string, error) {
	slot, err := ParseTimeOfDay(label)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	devices, ok := s.byType[examType]
	if !ok {
		return "", fmt.Errorf("exam type %q: %w", examType, ErrUnknownExamType)
	}
	for _, e := range devices {
		if _, taken := e.reservations[slot]; taken {
			continue
		}
		e.reservations[slot] = patientID
		logrus.WithFields(logrus.Fields{"patient": patientID, "device": e.ID}).Infof("reserved %s", slot)
		s.recorder.Record(s.clock.Now(), string(EventReservation), e.ID, patientID+" @"+slot.String())
		return e.ID, nil
	}
	return "", fmt.Errorf("%s at %s: %w", examType, slot, ErrSlotTaken)
}

// CancelReservation removes every reservation held by patientID on devices
// of examType and returns how many were removed.
func (s *EquipmentScheduler) CancelReservation(patientID, examType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, e := range s.byType[examType] {
		for slot, pid := range e.reservations {
			if pid == patientID {
				delete(e.reservations, slot)
				removed++
			}
		}
	}
	return removed
}

// Withdraw drops a patient from every queue and reservation, e.g. on discharge.
// An exam already in progress is left to finish.
func (s *EquipmentScheduler) Withdraw(patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		e := s.devices[id]
		e.queue.Remove(patientID)
		for slot, pid := range e.reservations {
			if pid == patientID {
				delete(e.reservations, slot)
			}
		}
	}
}

// FindBest returns the in-service device of examType with the shortest estimated wait.
func (s *EquipmentScheduler) FindBest(examType string) (BestDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	devices, ok := s.byType[examType]
	if !ok {
		return BestDevice{}, fmt.Errorf("exam type %q: %w", examType, ErrUnknownExamType)
	}
	var best *Equipment
	var bestWait time.Duration
	for _, e := range devices {
		if !e.inService() {
			continue
		}
		if w := e.estimatedWait(now); best == nil || w < bestWait {
			best, bestWait = e, w
		}
	}
	if best == nil {
		return BestDevice{}, s.unavailableErrLocked(devices, examType)
	}
	return BestDevice{
		EquipmentID:    best.ID,
		Name:           best.Name,
		LocationID:     best.LocationID,
		EstimatedWait:  bestWait,
		EstimatedStart: now.Add(bestWait),
		QueueLength:    best.queue.Len(),
	}, nil
}

// Equipment returns a snapshot of one device.
func (s *EquipmentScheduler) Equipment(id string) (EquipmentStatusView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.devices[id]
	if !ok {
		return EquipmentStatusView{}, false
	}
	return e.view(s.clock.Now()), true
}

// Status returns snapshots of devices, optionally filtered by exam type and/or
// location. Empty filters match everything.
func (s *EquipmentScheduler) Status(examType, locationID string) []EquipmentStatusView {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	var out []EquipmentStatusView
	for _, id := range s.order {
		e := s.devices[id]
		if examType != "" && e.ExamType != examType {
			continue
		}
		if locationID != "" && e.LocationID != locationID {
			continue
		}
		out = append(out, e.view(now))
	}
	return out
}

// ExamTypes returns the exam types served, sorted.
func (s *EquipmentScheduler) ExamTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.byType))
	for t := range s.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// resetDailyLocked zeroes every device's daily usage counter.
func (s *EquipmentScheduler) resetDailyLocked() {
	for _, id := range s.order {
		s.devices[id].DailyUsage = 0
	}
	logrus.Infof("daily equipment usage reset for %d devices", len(s.order))
}

// CheckInvariants verifies the per-device status invariants at the current time.
func (s *EquipmentScheduler) CheckInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	occupied := make(map[string]string)
	for _, id := range s.order {
		e := s.devices[id]
		busy := e.Status == StatusBusy
		if busy != (e.Occupant != "" && e.BusyUntil.After(now)) {
			return fmt.Errorf("%s: status %s, occupant %q, busy until %s", e.ID, e.Status, e.Occupant, e.BusyUntil)
		}
		if (e.Status == StatusMaintenance) != e.MaintenanceUntil.After(now) {
			return fmt.Errorf("%s: status %s, maintenance until %s", e.ID, e.Status, e.MaintenanceUntil)
		}
		if e.DailyUsage > e.MaxDailyUsage {
			return fmt.Errorf("%s: daily usage %d over cap %d", e.ID, e.DailyUsage, e.MaxDailyUsage)
		}
		if busy {
			if other, dup := occupied[e.Occupant]; dup {
				return fmt.Errorf("patient %s holds %s and %s", e.Occupant, other, e.ID)
			}
			occupied[e.Occupant] = e.ID
		}
		items := e.queue.Snapshot()
		for i := 1; i < len(items); i++ {
			if items[i-1].Priority > items[i].Priority {
				return fmt.Errorf("%s: queue out of order at %d", e.ID, i)
			}
		}
	}
	return nil
}
