package sim

import (
	"fmt"
	"strings"
	"time"
)

// Hotspot is a device whose queue and estimated wait are both over threshold.
type Hotspot struct {
	EquipmentID   string
	ExamType      string
	QueueLength   int
	EstimatedWait time.Duration
}

// Bottleneck is a device close to its daily usage cap.
type Bottleneck struct {
	EquipmentID string
	ExamType    string
	UsageRatio  float64
}

// ExamTypeLoad aggregates devices of one exam type.
type ExamTypeLoad struct {
	Devices     int
	Busy        int
	Available   int
	Maintenance int
	Queued      int
}

// CompetitionReport summarizes contention across every device.
type CompetitionReport struct {
	At          time.Time
	Devices     int
	Busy        int
	Available   int
	Maintenance int
	TotalQueued int
	ByExamType  map[string]ExamTypeLoad
	Hotspots    []Hotspot
	Bottlenecks []Bottleneck
}

// CompetitionReport aggregates device states, queue totals, hotspots and bottlenecks.
func (s *EquipmentScheduler) CompetitionReport() CompetitionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	r := CompetitionReport{At: now, Devices: len(s.order), ByExamType: make(map[string]ExamTypeLoad)}
	for _, id := range s.order {
		e := s.devices[id]
		load := r.ByExamType[e.ExamType]
		load.Devices++
		switch e.Status {
		case StatusBusy:
			r.Busy++
			load.Busy++
		case StatusMaintenance:
			r.Maintenance++
			load.Maintenance++
		default:
			r.Available++
			load.Available++
		}
		q := e.queue.Len()
		r.TotalQueued += q
		load.Queued += q
		r.ByExamType[e.ExamType] = load

		if wait := e.estimatedWait(now); q >= s.cfg.HotspotQueueLength && wait >= s.cfg.HotspotWait {
			r.Hotspots = append(r.Hotspots, Hotspot{EquipmentID: e.ID, ExamType: e.ExamType, QueueLength: q, EstimatedWait: wait})
		}
		if ratio := float64(e.DailyUsage) / float64(e.MaxDailyUsage); ratio >= s.cfg.BottleneckUsageRatio {
			r.Bottlenecks = append(r.Bottlenecks, Bottleneck{EquipmentID: e.ID, ExamType: e.ExamType, UsageRatio: ratio})
		}
	}
	return r
}

func (r CompetitionReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "devices=%d busy=%d available=%d maintenance=%d queued=%d",
		r.Devices, r.Busy, r.Available, r.Maintenance, r.TotalQueued)
	for _, h := range r.Hotspots {
		fmt.Fprintf(&sb, "\n  hotspot %s (%s): %d queued, ~%s wait", h.EquipmentID, h.ExamType, h.QueueLength, h.EstimatedWait)
	}
	for _, b := range r.Bottlenecks {
		fmt.Fprintf(&sb, "\n  bottleneck %s (%s): %.0f%% of daily cap", b.EquipmentID, b.ExamType, b.UsageRatio*100)
	}
	return sb.String()
}
