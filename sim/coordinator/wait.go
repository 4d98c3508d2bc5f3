package coordinator

import (
	"context"
	"fmt"
)

// notifyLocked wakes every WaitFor caller. Requires sessionsMu.
func (c *Coordinator) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// WaitFor blocks until cond holds for the patient's session, the session is
// discharged without cond holding, or ctx ends. It holds no lock while
// blocked. The last observed session is always returned.
func (c *Coordinator) WaitFor(ctx context.Context, patientID string, cond func(Session) bool) (Session, error) {
	for {
		c.sessionsMu.Lock()
		s, ok := c.lookupLocked(patientID)
		if !ok {
			c.sessionsMu.Unlock()
			return Session{}, fmt.Errorf("patient %q: %w", patientID, ErrUnknownPatient)
		}
		snap := s.clone()
		ch := c.changed
		c.sessionsMu.Unlock()

		if cond(snap) {
			return snap, nil
		}
		if snap.Status == StatusDischarged {
			return snap, fmt.Errorf("patient %q: %w", patientID, ErrDischarged)
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ch:
		}
	}
}

// Assigned is a WaitFor condition: the patient has a doctor.
func Assigned(s Session) bool { return s.AssignedDoctor != "" && s.Status == StatusInConsult }

// LabReady is a WaitFor condition: lab results are in.
func LabReady(s Session) bool { return s.LabReady }

// ImagingReady is a WaitFor condition: imaging results are in.
func ImagingReady(s Session) bool { return s.ImagingReady }
