package workflow

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/GoitHT/patient-agent-sub001/sim"
)

// ConsultRequest is what a doctor sees when a consultation starts.
type ConsultRequest struct {
	Patient     Patient
	DoctorID    string
	Visit       int
	Physical    sim.PhysicalSummary
	LabDone     bool
	ImagingDone bool
}

// Consultation is the outcome of one visit.
type Consultation struct {
	Diagnosis     string
	OrderLab      bool
	OrderImaging  bool
	Medication    string
	Effectiveness float64
	FollowUp      bool
}

// Consultant produces the content of a consultation. Implementations may
// call out to external agents; the orchestrator only applies the outcome.
type Consultant interface {
	Consult(ctx context.Context, req ConsultRequest) (Consultation, error)
}

// SimulatedConsultant is a deterministic stand-in for a doctor agent. It
// orders the exams a case asks for on the first visit and prescribes once
// results are in.
type SimulatedConsultant struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedConsultant draws medication effectiveness from rng.
func NewSimulatedConsultant(rng *rand.Rand) *SimulatedConsultant {
	return &SimulatedConsultant{rng: rng}
}

func (c *SimulatedConsultant) Consult(ctx context.Context, req ConsultRequest) (Consultation, error) {
	if err := ctx.Err(); err != nil {
		return Consultation{}, err
	}
	c.mu.Lock()
	eff := 0.85 + c.rng.Float64()*0.05
	c.mu.Unlock()

	p := req.Patient
	var out Consultation
	pendingLab := p.LabExam != "" && !req.LabDone
	pendingImaging := p.ImagingExam != "" && !req.ImagingDone
	switch {
	case pendingLab:
		out.OrderLab = true
		out.Diagnosis = "pending lab results"
	case pendingImaging:
		out.OrderImaging = true
		out.Diagnosis = "pending imaging"
	default:
		out.Diagnosis = diagnose(p, req.Physical)
		out.Medication = "treatment for " + out.Diagnosis
		out.Effectiveness = eff
		out.FollowUp = p.FollowUp && req.Visit == 1
	}
	return out, nil
}

func diagnose(p Patient, ps sim.PhysicalSummary) string {
	worst := ""
	var sev float64
	for _, s := range ps.Symptoms {
		if s.Severity > sev {
			worst, sev = s.Name, s.Severity
		}
	}
	if worst == "" {
		worst = strings.TrimSpace(p.Info.ChiefComplaint)
	}
	if worst == "" {
		return "observation"
	}
	return worst
}

// BreakerSettings configures BreakerConsultant.
type BreakerSettings struct {
	MaxFailures int
	Timeout     time.Duration
	Interval    time.Duration
}

// BreakerConsultant guards a Consultant with a circuit breaker: after
// MaxFailures consecutive failures consultations fail fast until Timeout has
// passed.
type BreakerConsultant struct {
	inner Consultant
	cb    *gobreaker.CircuitBreaker[Consultation]
}

// NewBreakerConsultant wraps inner. Zero settings take the defaults of
// 5 failures, a 30s open timeout and a 60s counting interval.
func NewBreakerConsultant(inner Consultant, name string, s BreakerSettings) *BreakerConsultant {
	if s.MaxFailures <= 0 {
		s.MaxFailures = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.Interval <= 0 {
		s.Interval = 60 * time.Second
	}
	limit := uint32(s.MaxFailures)
	cb := gobreaker.NewCircuitBreaker[Consultation](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithField("breaker", name).Warnf("consultant breaker %s -> %s", from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return &BreakerConsultant{inner: inner, cb: cb}
}

func (b *BreakerConsultant) Consult(ctx context.Context, req ConsultRequest) (Consultation, error) {
	out, err := b.cb.Execute(func() (Consultation, error) {
		return b.inner.Consult(ctx, req)
	})
	if err != nil {
		return Consultation{}, fmt.Errorf("consultant: %w", err)
	}
	return out, nil
}

// State reports the breaker state.
func (b *BreakerConsultant) State() gobreaker.State { return b.cb.State() }
