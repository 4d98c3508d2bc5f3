package coordinator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GoitHT/patient-agent-sub001/sim"
)

// Coordinator exclusively owns Doctor and Session records.
//
// Lock order: doctorsMu -> sessionsMu. Neither is held while calling the World
// or the Recorder-backed notifications that follow a mutation.
type Coordinator struct {
	world    World
	recorder sim.Recorder

	doctorsMu sync.Mutex
	doctors   map[string]*Doctor

	sessionsMu   sync.Mutex
	sessions     map[string]*Session
	history      map[string]*Session
	queues       map[string]*deptQueue
	pending      []*consultRequest
	seq          uint64
	registered   int
	completed    int
	multiConsult int
	changed      chan struct{}
}

// New creates a Coordinator bound to a world. The coordinator subscribes to
// day boundaries to reset today's served counters. recorder may be nil.
func New(world World, recorder sim.Recorder) *Coordinator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	c := &Coordinator{
		world:    world,
		recorder: recorder,
		doctors:  make(map[string]*Doctor),
		sessions: make(map[string]*Session),
		history:  make(map[string]*Session),
		queues:   make(map[string]*deptQueue),
		changed:  make(chan struct{}),
	}
	world.OnDayBoundary(func(sim.DayBoundary) { c.ResetDailyCounters() })
	return c
}

type nopRecorder struct{}

func (nopRecorder) Record(time.Time, string, string, string) {}

// RegisterDoctor adds an available doctor.
func (c *Coordinator) RegisterDoctor(id, name, department string) error {
	c.doctorsMu.Lock()
	if _, exists := c.doctors[id]; exists {
		c.doctorsMu.Unlock()
		return fmt.Errorf("doctor %q: %w", id, sim.ErrDuplicateID)
	}
	c.doctors[id] = &Doctor{ID: id, Name: name, Department: department, Status: DoctorAvailable}
	c.doctorsMu.Unlock()
	logrus.WithFields(logrus.Fields{"doctor": id, "dept": department}).Info("doctor registered")
	c.afterChange()
	return nil
}

// RegisterPatient creates a session and places the patient in the lobby.
// Priority is clamped to the department scale.
func (c *Coordinator) RegisterPatient(id string, info PatientInfo, department string, priority int) error {
	c.sessionsMu.Lock()
	_, active := c.sessions[id]
	_, past := c.history[id]
	c.sessionsMu.Unlock()
	if active || past {
		return fmt.Errorf("patient %q: %w", id, sim.ErrDuplicateID)
	}
	if err := c.world.AddAgent(id, sim.AgentPatient, c.world.Lobby()); err != nil {
		return fmt.Errorf("register patient %q: %w", id, err)
	}
	now := c.world.Now()

	c.sessionsMu.Lock()
	if _, exists := c.sessions[id]; exists {
		c.sessionsMu.Unlock()
		return fmt.Errorf("patient %q: %w", id, sim.ErrDuplicateID)
	}
	c.sessions[id] = &Session{
		ID:           id,
		Info:         info,
		Department:   department,
		Priority:     sim.ClampDepartmentPriority(priority),
		Status:       StatusRegistered,
		RegisteredAt: now,
	}
	c.registered++
	c.notifyLocked()
	c.sessionsMu.Unlock()

	logrus.WithFields(logrus.Fields{"patient": id, "dept": department, "priority": priority}).Info("patient registered")
	c.recorder.Record(now, "patient_registered", id, department)
	return nil
}

// Enqueue puts a patient on its department's wait list and tries to assign
// a doctor. A critical patient is raised to the top priority and flagged as
// an emergency. AssignedDoctor is cleared; LastDoctor is kept.
func (c *Coordinator) Enqueue(patientID string) error {
	critical := c.world.IsCritical(patientID)
	now := c.world.Now()

	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	s, ok := c.sessions[patientID]
	if !ok {
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("patient %q: %w", patientID, ErrUnknownPatient)
	}
	switch s.Status {
	case StatusRegistered, StatusInConsult, StatusWaiting:
	default:
		status := s.Status
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("enqueue %s from %s: %w", patientID, status, ErrInvalidTransition)
	}
	c.enqueueLocked(s, critical, now)
	assigned := c.tryAssignLocked(now)
	warnings := c.competitionLocked()
	c.notifyLocked()
	c.sessionsMu.Unlock()
	c.doctorsMu.Unlock()

	c.report(assigned, warnings)
	return nil
}

func (c *Coordinator) enqueueLocked(s *Session, critical bool, now time.Time) {
	if critical && !s.Emergency {
		s.Emergency = true
		s.Priority = sim.MaxDepartmentPriority
		logrus.WithField("patient", s.ID).Warn("critical condition, raised to emergency priority")
	}
	if s.Status != StatusWaiting {
		s.EnqueuedAt = now
	}
	s.Status = StatusWaiting
	s.AssignedDoctor = ""
	q := c.queueLocked(s.Department)
	c.seq++
	pos := q.push(waitEntry{patientID: s.ID, priority: s.Priority, enqueuedAt: s.EnqueuedAt, seq: c.seq})
	logrus.WithFields(logrus.Fields{"patient": s.ID, "dept": s.Department}).Debugf("waiting at position %d", pos)
}

func (c *Coordinator) queueLocked(dept string) *deptQueue {
	q, ok := c.queues[dept]
	if !ok {
		q = &deptQueue{}
		c.queues[dept] = q
	}
	return q
}

// TryAssign matches waiting patients with available doctors in every department.
func (c *Coordinator) TryAssign() []Assignment {
	now := c.world.Now()
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	assigned := c.tryAssignLocked(now)
	warnings := c.competitionLocked()
	if len(assigned) > 0 {
		c.notifyLocked()
	}
	c.sessionsMu.Unlock()
	c.doctorsMu.Unlock()
	c.report(assigned, warnings)
	return assigned
}

// tryAssignLocked pops the most urgent patient of each department while an
// available doctor exists there. Requires doctorsMu and sessionsMu.
func (c *Coordinator) tryAssignLocked(now time.Time) []Assignment {
	var out []Assignment
	depts := make([]string, 0, len(c.queues))
	for d := range c.queues {
		depts = append(depts, d)
	}
	sort.Strings(depts)
	for _, dept := range depts {
		q := c.queues[dept]
		for q.len() > 0 {
			doc := c.leastLoadedLocked(dept)
			if doc == nil {
				break
			}
			entry, _ := q.pop()
			s, ok := c.sessions[entry.patientID]
			if !ok || s.Status != StatusWaiting {
				continue
			}
			c.assignLocked(doc, s)
			out = append(out, Assignment{PatientID: s.ID, DoctorID: doc.ID, Department: dept, At: now})
		}
	}
	return out
}

func (c *Coordinator) assignLocked(doc *Doctor, s *Session) {
	doc.Status = DoctorBusy
	doc.CurrentPatient = s.ID
	s.Status = StatusInConsult
	s.AssignedDoctor = doc.ID
	s.LastDoctor = doc.ID
	s.Visits++
}

// leastLoadedLocked returns the available doctor of dept with the fewest
// patients served today, ties broken by id.
func (c *Coordinator) leastLoadedLocked(dept string) *Doctor {
	var best *Doctor
	for _, d := range c.doctors {
		if d.Department != dept || d.Status != DoctorAvailable {
			continue
		}
		if best == nil || d.ServedToday < best.ServedToday || (d.ServedToday == best.ServedToday && d.ID < best.ID) {
			best = d
		}
	}
	return best
}

// competitionLocked lists departments whose wait list outnumbers available doctors.
func (c *Coordinator) competitionLocked() []string {
	var out []string
	for dept, q := range c.queues {
		if q.len() == 0 {
			continue
		}
		available := 0
		for _, d := range c.doctors {
			if d.Department == dept && d.Status == DoctorAvailable {
				available++
			}
		}
		if q.len() > available {
			out = append(out, fmt.Sprintf("%s: %d waiting, %d doctors available", dept, q.len(), available))
		}
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) report(assigned []Assignment, warnings []string) {
	for _, a := range assigned {
		logrus.WithFields(logrus.Fields{"patient": a.PatientID, "doctor": a.DoctorID, "dept": a.Department}).Info("doctor assigned")
		c.recorder.Record(a.At, "doctor_assigned", a.DoctorID, a.PatientID)
	}
	for _, w := range warnings {
		logrus.Debugf("resource competition: %s", w)
	}
}

// ReleaseDoctor ends a doctor's consultation with its current patient:
// the doctor becomes available, today's served count grows, and pending
// consultation requests and wait lists are retried. The session keeps its
// status and LastDoctor; AssignedDoctor is cleared.
func (c *Coordinator) ReleaseDoctor(doctorID string) error {
	now := c.world.Now()
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	doc, ok := c.doctors[doctorID]
	if !ok {
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("doctor %q: %w", doctorID, ErrUnknownDoctor)
	}
	if doc.Status != DoctorBusy {
		status := doc.Status
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("release %s while %s: %w", doctorID, status, ErrInvalidTransition)
	}
	patient := doc.CurrentPatient
	c.freeDoctorLocked(doc, true)
	if s, ok := c.sessions[patient]; ok && s.AssignedDoctor == doctorID {
		s.AssignedDoctor = ""
	}
	attached := c.processPendingLocked(doc.Department)
	assigned := c.tryAssignLocked(now)
	warnings := c.competitionLocked()
	c.notifyLocked()
	c.sessionsMu.Unlock()
	c.doctorsMu.Unlock()

	logrus.WithFields(logrus.Fields{"doctor": doctorID, "patient": patient}).Info("doctor released")
	c.recorder.Record(now, "doctor_released", doctorID, patient)
	c.reportConsults(attached)
	c.report(assigned, warnings)
	return nil
}

func (c *Coordinator) freeDoctorLocked(doc *Doctor, served bool) {
	doc.Status = DoctorAvailable
	doc.CurrentPatient = ""
	if served {
		doc.ServedToday++
		doc.ServedTotal++
		c.completed++
	}
}

// AssignDoctorManually assigns a specific available doctor to a waiting patient.
func (c *Coordinator) AssignDoctorManually(patientID, doctorID string) error {
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	defer c.doctorsMu.Unlock()
	defer c.sessionsMu.Unlock()
	doc, ok := c.doctors[doctorID]
	if !ok {
		return fmt.Errorf("doctor %q: %w", doctorID, ErrUnknownDoctor)
	}
	s, ok := c.sessions[patientID]
	if !ok {
		return fmt.Errorf("patient %q: %w", patientID, ErrUnknownPatient)
	}
	if doc.Status != DoctorAvailable {
		return fmt.Errorf("doctor %s is %s: %w", doctorID, doc.Status, ErrInvalidTransition)
	}
	if s.Status != StatusWaiting && s.Status != StatusRegistered {
		return fmt.Errorf("patient %s is %s: %w", patientID, s.Status, ErrInvalidTransition)
	}
	c.queueLocked(s.Department).remove(patientID)
	c.assignLocked(doc, s)
	c.notifyLocked()
	logrus.WithFields(logrus.Fields{"patient": patientID, "doctor": doctorID}).Info("doctor assigned manually")
	return nil
}

// SetDoctorOffline takes an available doctor out of rotation.
func (c *Coordinator) SetDoctorOffline(doctorID string) error {
	c.doctorsMu.Lock()
	defer c.doctorsMu.Unlock()
	doc, ok := c.doctors[doctorID]
	if !ok {
		return fmt.Errorf("doctor %q: %w", doctorID, ErrUnknownDoctor)
	}
	if doc.Status != DoctorAvailable && doc.Status != DoctorOffline {
		return fmt.Errorf("doctor %s is %s: %w", doctorID, doc.Status, ErrInvalidTransition)
	}
	doc.Status = DoctorOffline
	return nil
}

// SetDoctorOnline returns an offline doctor to rotation and retries assignment.
func (c *Coordinator) SetDoctorOnline(doctorID string) error {
	c.doctorsMu.Lock()
	doc, ok := c.doctors[doctorID]
	if !ok {
		c.doctorsMu.Unlock()
		return fmt.Errorf("doctor %q: %w", doctorID, ErrUnknownDoctor)
	}
	if doc.Status == DoctorOffline {
		doc.Status = DoctorAvailable
	}
	c.doctorsMu.Unlock()
	c.afterChange()
	return nil
}

// afterChange retries consultations and assignment for every department.
func (c *Coordinator) afterChange() {
	now := c.world.Now()
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	var attached []consultAttachment
	depts := make(map[string]bool)
	for _, r := range c.pending {
		depts[r.targetDept] = true
	}
	for d := range depts {
		attached = append(attached, c.processPendingLocked(d)...)
	}
	assigned := c.tryAssignLocked(now)
	warnings := c.competitionLocked()
	c.notifyLocked()
	c.sessionsMu.Unlock()
	c.doctorsMu.Unlock()
	c.reportConsults(attached)
	c.report(assigned, warnings)
}

// SendToLab moves a patient in consultation to awaiting_lab.
func (c *Coordinator) SendToLab(patientID string) error {
	return c.sendOut(patientID, StatusAwaitingLab)
}

// SendToImaging moves a patient in consultation to awaiting_imaging.
func (c *Coordinator) SendToImaging(patientID string) error {
	return c.sendOut(patientID, StatusAwaitingImaging)
}

func (c *Coordinator) sendOut(patientID string, to SessionStatus) error {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	s, ok := c.sessions[patientID]
	if !ok {
		return fmt.Errorf("patient %q: %w", patientID, ErrUnknownPatient)
	}
	if s.Status != StatusInConsult {
		return fmt.Errorf("%s from %s: %w", to, s.Status, ErrInvalidTransition)
	}
	s.Status = to
	switch to {
	case StatusAwaitingLab:
		s.LabReady = false
	case StatusAwaitingImaging:
		s.ImagingReady = false
	}
	c.notifyLocked()
	logrus.WithField("patient", patientID).Infof("status %s", to)
	return nil
}

// CompleteLabTest marks lab results ready and re-enqueues the patient.
func (c *Coordinator) CompleteLabTest(patientID string) error {
	return c.completeExam(patientID, StatusAwaitingLab)
}

// CompleteImaging marks imaging results ready and re-enqueues the patient.
func (c *Coordinator) CompleteImaging(patientID string) error {
	return c.completeExam(patientID, StatusAwaitingImaging)
}

func (c *Coordinator) completeExam(patientID string, from SessionStatus) error {
	critical := c.world.IsCritical(patientID)
	now := c.world.Now()

	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	s, ok := c.sessions[patientID]
	if !ok {
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("patient %q: %w", patientID, ErrUnknownPatient)
	}
	if s.Status != from {
		status := s.Status
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("complete %s while %s: %w", from, status, ErrInvalidTransition)
	}
	if from == StatusAwaitingLab {
		s.LabReady = true
	} else {
		s.ImagingReady = true
	}
	c.enqueueLocked(s, critical, now)
	assigned := c.tryAssignLocked(now)
	warnings := c.competitionLocked()
	c.notifyLocked()
	c.sessionsMu.Unlock()
	c.doctorsMu.Unlock()

	logrus.WithField("patient", patientID).Infof("results ready after %s", from)
	c.report(assigned, warnings)
	return nil
}

// Discharge ends a session: the patient leaves every wait list, any doctor
// still attached is freed, and the patient is removed from the world. The
// session moves to history for statistics.
func (c *Coordinator) Discharge(patientID string) error {
	now := c.world.Now()
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	s, ok := c.sessions[patientID]
	if !ok {
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("patient %q: %w", patientID, ErrUnknownPatient)
	}
	c.queueLocked(s.Department).remove(patientID)
	var freedDepts []string
	for _, d := range c.doctors {
		if d.CurrentPatient != patientID {
			continue
		}
		c.freeDoctorLocked(d, d.Status == DoctorBusy)
		freedDepts = append(freedDepts, d.Department)
	}
	c.dropPendingLocked(patientID)
	s.Status = StatusDischarged
	s.AssignedDoctor = ""
	s.Consultants = nil
	s.DischargedAt = now
	delete(c.sessions, patientID)
	c.history[patientID] = s
	var attached []consultAttachment
	for _, d := range freedDepts {
		attached = append(attached, c.processPendingLocked(d)...)
	}
	assigned := c.tryAssignLocked(now)
	warnings := c.competitionLocked()
	c.notifyLocked()
	c.sessionsMu.Unlock()
	c.doctorsMu.Unlock()

	if _, err := c.world.RemoveAgent(patientID); err != nil {
		logrus.WithField("patient", patientID).Warnf("remove from world: %v", err)
	}
	logrus.WithField("patient", patientID).Info("discharged")
	c.recorder.Record(now, "patient_discharged", patientID, "")
	c.reportConsults(attached)
	c.report(assigned, warnings)
	return nil
}

// ResetDailyCounters zeroes every doctor's served-today count.
func (c *Coordinator) ResetDailyCounters() {
	c.doctorsMu.Lock()
	defer c.doctorsMu.Unlock()
	for _, d := range c.doctors {
		d.ServedToday = 0
	}
	logrus.Infof("daily served counters reset for %d doctors", len(c.doctors))
}

// GetPatient returns a copy of an active or discharged session.
func (c *Coordinator) GetPatient(id string) (Session, bool) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	s, ok := c.lookupLocked(id)
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

func (c *Coordinator) lookupLocked(id string) (*Session, bool) {
	if s, ok := c.sessions[id]; ok {
		return s, true
	}
	s, ok := c.history[id]
	return s, ok
}

// GetDoctor returns a copy of a doctor record.
func (c *Coordinator) GetDoctor(id string) (Doctor, bool) {
	c.doctorsMu.Lock()
	defer c.doctorsMu.Unlock()
	d, ok := c.doctors[id]
	if !ok {
		return Doctor{}, false
	}
	return *d, true
}

// Doctors returns copies of every doctor, sorted by id.
func (c *Coordinator) Doctors() []Doctor {
	c.doctorsMu.Lock()
	defer c.doctorsMu.Unlock()
	out := make([]Doctor, 0, len(c.doctors))
	for _, d := range c.doctors {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WaitList returns the patient ids waiting in dept, in service order.
func (c *Coordinator) WaitList(dept string) []string {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	q, ok := c.queues[dept]
	if !ok {
		return nil
	}
	return q.ids()
}
