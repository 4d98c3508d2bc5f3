package coordinator

import "sort"

// SystemStats is a read-only snapshot of the whole ledger.
type SystemStats struct {
	TotalDoctors                int
	AvailableDoctors            int
	TotalPatientsRegistered     int
	ActivePatients              int
	DischargedPatients          int
	TotalConsultationsCompleted int
	MultiConsultations          int
	PendingConsultationRequests int
}

// DeptStatus is a read-only snapshot of one department.
type DeptStatus struct {
	Department string
	Total      int
	Available  int
	Busy       int
	Consulting int
	Offline    int
	Waiting    int
}

// GetSystemStats returns aggregate counts.
func (c *Coordinator) GetSystemStats() SystemStats {
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	defer c.doctorsMu.Unlock()
	defer c.sessionsMu.Unlock()
	st := SystemStats{
		TotalDoctors:                len(c.doctors),
		TotalPatientsRegistered:     c.registered,
		ActivePatients:              len(c.sessions),
		DischargedPatients:          len(c.history),
		TotalConsultationsCompleted: c.completed,
		MultiConsultations:          c.multiConsult,
		PendingConsultationRequests: len(c.pending),
	}
	for _, d := range c.doctors {
		if d.Status == DoctorAvailable {
			st.AvailableDoctors++
		}
	}
	return st
}

// GetAllDeptStatus returns one snapshot per department that has doctors or
// waiting patients, sorted by department.
func (c *Coordinator) GetAllDeptStatus() []DeptStatus {
	c.doctorsMu.Lock()
	c.sessionsMu.Lock()
	defer c.doctorsMu.Unlock()
	defer c.sessionsMu.Unlock()
	byDept := make(map[string]*DeptStatus)
	get := func(dept string) *DeptStatus {
		ds, ok := byDept[dept]
		if !ok {
			ds = &DeptStatus{Department: dept}
			byDept[dept] = ds
		}
		return ds
	}
	for _, d := range c.doctors {
		ds := get(d.Department)
		ds.Total++
		switch d.Status {
		case DoctorAvailable:
			ds.Available++
		case DoctorBusy:
			ds.Busy++
		case DoctorConsulting:
			ds.Consulting++
		case DoctorOffline:
			ds.Offline++
		}
	}
	for dept, q := range c.queues {
		if q.len() > 0 {
			get(dept).Waiting = q.len()
		}
	}
	out := make([]DeptStatus, 0, len(byDept))
	for _, ds := range byDept {
		out = append(out, *ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Department < out[j].Department })
	return out
}
