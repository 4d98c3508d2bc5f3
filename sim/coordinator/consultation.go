package coordinator

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ConsultStatus says whether a consultation request got a doctor.
type ConsultStatus string

const (
	ConsultAttached ConsultStatus = "attached"
	ConsultPending  ConsultStatus = "pending"
)

// ConsultResult describes the outcome of RequestConsultation.
type ConsultResult struct {
	Status   ConsultStatus
	DoctorID string // set when attached
	Position int    // 1-based among pending requests for the department
}

type consultRequest struct {
	patientID   string
	requestedBy string
	targetDept  string
	reason      string
	requestedAt time.Time
}

type consultAttachment struct {
	patientID string
	doctorID  string
	dept      string
	reason    string
}

// RequestConsultation asks for a doctor of targetDept to join an active
// patient's care. An available doctor is attached immediately (status
// consulting); otherwise the request waits until one is released.
func (c *Coordinator) RequestConsultation(patientID, requestingDoctor, targetDept, reason string) (ConsultResult, error) {
	now := c.world.Now()
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	defer c.doctorsMu.Unlock()
	defer c.sessionsMu.Unlock()

	if _, ok := c.sessions[patientID]; !ok {
		return ConsultResult{}, fmt.Errorf("patient %q: %w", patientID, ErrUnknownPatient)
	}
	if requestingDoctor != "" {
		if _, ok := c.doctors[requestingDoctor]; !ok {
			return ConsultResult{}, fmt.Errorf("doctor %q: %w", requestingDoctor, ErrUnknownDoctor)
		}
	}
	req := &consultRequest{patientID: patientID, requestedBy: requestingDoctor, targetDept: targetDept, reason: reason, requestedAt: now}
	if doc := c.leastLoadedLocked(targetDept); doc != nil {
		a := c.attachLocked(doc, req)
		c.notifyLocked()
		logrus.WithFields(logrus.Fields{"patient": patientID, "doctor": a.doctorID, "dept": targetDept}).Infof("consultation attached: %s", reason)
		c.recorder.Record(now, "consultation_attached", a.doctorID, patientID)
		return ConsultResult{Status: ConsultAttached, DoctorID: doc.ID}, nil
	}
	c.pending = append(c.pending, req)
	pos := 0
	for _, r := range c.pending {
		if r.targetDept == targetDept {
			pos++
		}
	}
	logrus.WithFields(logrus.Fields{"patient": patientID, "dept": targetDept}).Infof("consultation pending at position %d", pos)
	c.recorder.Record(now, "consultation_pending", targetDept, patientID)
	return ConsultResult{Status: ConsultPending, Position: pos}, nil
}

func (c *Coordinator) attachLocked(doc *Doctor, req *consultRequest) consultAttachment {
	doc.Status = DoctorConsulting
	doc.CurrentPatient = req.patientID
	if s, ok := c.sessions[req.patientID]; ok {
		s.Consultants = append(s.Consultants, doc.ID)
	}
	c.multiConsult++
	return consultAttachment{patientID: req.patientID, doctorID: doc.ID, dept: req.targetDept, reason: req.reason}
}

// EndConsultation detaches a consulting doctor from a patient and retries
// pending requests and wait lists of that doctor's department.
func (c *Coordinator) EndConsultation(patientID, doctorID string) error {
	now := c.world.Now()
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	doc, ok := c.doctors[doctorID]
	if !ok {
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("doctor %q: %w", doctorID, ErrUnknownDoctor)
	}
	if doc.Status != DoctorConsulting || doc.CurrentPatient != patientID {
		status, current := doc.Status, doc.CurrentPatient
		c.sessionsMu.Unlock()
		c.doctorsMu.Unlock()
		return fmt.Errorf("end consultation %s/%s while %s with %q: %w", patientID, doctorID, status, current, ErrInvalidTransition)
	}
	c.freeDoctorLocked(doc, false)
	if s, ok := c.sessions[patientID]; ok {
		kept := s.Consultants[:0]
		for _, id := range s.Consultants {
			if id != doctorID {
				kept = append(kept, id)
			}
		}
		s.Consultants = kept
	}
	attached := c.processPendingLocked(doc.Department)
	assigned := c.tryAssignLocked(now)
	warnings := c.competitionLocked()
	c.notifyLocked()
	c.sessionsMu.Unlock()
	c.doctorsMu.Unlock()

	logrus.WithFields(logrus.Fields{"patient": patientID, "doctor": doctorID}).Info("consultation ended")
	c.recorder.Record(now, "consultation_ended", doctorID, patientID)
	c.reportConsults(attached)
	c.report(assigned, warnings)
	return nil
}

// processPendingLocked attaches available doctors of dept to pending
// requests, oldest first.
func (c *Coordinator) processPendingLocked(dept string) []consultAttachment {
	var out []consultAttachment
	kept := c.pending[:0]
	for _, req := range c.pending {
		if req.targetDept == dept {
			if _, active := c.sessions[req.patientID]; active {
				if doc := c.leastLoadedLocked(dept); doc != nil {
					out = append(out, c.attachLocked(doc, req))
					continue
				}
			} else {
				continue
			}
		}
		kept = append(kept, req)
	}
	c.pending = kept
	return out
}

func (c *Coordinator) dropPendingLocked(patientID string) {
	kept := c.pending[:0]
	for _, req := range c.pending {
		if req.patientID != patientID {
			kept = append(kept, req)
		}
	}
	c.pending = kept
}

func (c *Coordinator) reportConsults(attached []consultAttachment) {
	now := c.world.Now()
	for _, a := range attached {
		logrus.WithFields(logrus.Fields{"patient": a.patientID, "doctor": a.doctorID, "dept": a.dept}).Infof("pending consultation attached: %s", a.reason)
		c.recorder.Record(now, "consultation_attached", a.doctorID, a.patientID)
	}
}
