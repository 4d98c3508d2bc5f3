package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/GoitHT/patient-agent-sub001/sim"
	"github.com/GoitHT/patient-agent-sub001/sim/coordinator"
)

// Config tunes an Orchestrator.
type Config struct {
	Workers           int
	AssignmentTimeout time.Duration
	ResultTimeout     time.Duration
	// MaxVisits bounds consultations per patient, follow-ups included.
	MaxVisits int
	// ClockStep is simulated time added every ClockInterval of wall time
	// while work is outstanding. Zero leaves the clock to the caller.
	ClockStep     time.Duration
	ClockInterval time.Duration
	// Seed feeds handle IDs.
	Seed int64
}

// DefaultConfig returns 4 workers, a 300s assignment timeout, a 60s result
// timeout and a driver adding 5 simulated minutes every 20ms.
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		AssignmentTimeout: 300 * time.Second,
		ResultTimeout:     60 * time.Second,
		MaxVisits:         4,
		ClockStep:         5 * time.Minute,
		ClockInterval:     20 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.AssignmentTimeout <= 0 {
		c.AssignmentTimeout = d.AssignmentTimeout
	}
	if c.ResultTimeout <= 0 {
		c.ResultTimeout = d.ResultTimeout
	}
	if c.MaxVisits <= 0 {
		c.MaxVisits = d.MaxVisits
	}
	if c.ClockStep > 0 && c.ClockInterval <= 0 {
		c.ClockInterval = d.ClockInterval
	}
	return c
}

// Handle identifies a submitted workflow.
type Handle string

type job struct {
	handle  Handle
	patient Patient
	done    chan struct{}
	result  Result
}

// Orchestrator runs patient workflows on a bounded pool.
type Orchestrator struct {
	world      *sim.World
	coord      *coordinator.Coordinator
	consultant Consultant
	cfg        Config
	sem        *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // workflows
	bg     sync.WaitGroup // clock driver and janitors

	mu        sync.Mutex
	jobs      map[Handle]*job
	order     []Handle
	active    int
	janitors  int
	stopped   bool
	entropy   io.Reader
	completed int
	failed    int
}

// New creates an Orchestrator over a world and its coordinator. Exam
// completions in the world are turned into lab and imaging results for the
// sessions waiting on them.
func New(world *sim.World, coord *coordinator.Coordinator, consultant Consultant, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		world:      world,
		coord:      coord,
		consultant: consultant,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[Handle]*job),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(cfg.Seed)), 0),
	}
	world.OnExamComplete(o.onExamComplete)
	if cfg.ClockStep > 0 {
		o.bg.Add(1)
		go o.drive()
	}
	logrus.Infof("orchestrator ready: %d workers, assignment timeout %s, result timeout %s",
		cfg.Workers, cfg.AssignmentTimeout, cfg.ResultTimeout)
	return o
}

func (o *Orchestrator) onExamComplete(e sim.ExamCompletion) {
	s, ok := o.coord.GetPatient(e.PatientID)
	if !ok {
		return
	}
	var err error
	switch s.Status {
	case coordinator.StatusAwaitingLab:
		err = o.coord.CompleteLabTest(e.PatientID)
	case coordinator.StatusAwaitingImaging:
		err = o.coord.CompleteImaging(e.PatientID)
	default:
		return
	}
	if err != nil {
		logrus.WithField("patient", e.PatientID).Warnf("exam %s result: %v", e.ExamType, err)
	}
}

// drive is the single clock advancer.
func (o *Orchestrator) drive() {
	defer o.bg.Done()
	ticker := time.NewTicker(o.cfg.ClockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if o.outstanding() > 0 {
				o.world.Advance(o.cfg.ClockStep)
			}
		}
	}
}

func (o *Orchestrator) outstanding() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active + o.janitors
}

// Submit starts a workflow for p without blocking.
func (o *Orchestrator) Submit(p Patient) (Handle, error) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return "", ErrShutdown
	}
	h := Handle(ulid.MustNew(ulid.Timestamp(o.world.Now()), o.entropy).String())
	j := &job{handle: h, patient: p, done: make(chan struct{})}
	o.jobs[h] = j
	o.order = append(o.order, h)
	o.active++
	o.wg.Add(1)
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{"patient": p.ID, "handle": h}).Debug("workflow submitted")
	go o.execute(j)
	return h, nil
}

// SubmitBatch submits every patient in order. It stops at the first refusal
// and returns the handles accepted so far.
func (o *Orchestrator) SubmitBatch(patients []Patient) ([]Handle, error) {
	handles := make([]Handle, 0, len(patients))
	for _, p := range patients {
		h, err := o.Submit(p)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Wait blocks until the workflow ends or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context, h Handle) (Result, error) {
	o.mu.Lock()
	j, ok := o.jobs[h]
	o.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", h, ErrUnknownHandle)
	}
	select {
	case <-j.done:
		return j.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// WaitAll waits for every submitted workflow and returns results in
// submission order. When ctx ends first, the finished results are returned
// with ctx's error.
func (o *Orchestrator) WaitAll(ctx context.Context) ([]Result, error) {
	o.mu.Lock()
	handles := append([]Handle(nil), o.order...)
	o.mu.Unlock()

	results := make([]Result, 0, len(handles))
	for _, h := range handles {
		r, err := o.Wait(ctx, h)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// ActiveCount is the number of workflows queued or running.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Counts returns the number of completed and failed workflows so far.
func (o *Orchestrator) Counts() (completed, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed, o.failed
}

// Shutdown refuses new work and stops outstanding workflows at their next
// wait. Workflows not yet started fail with reason "shutdown". It returns
// once every goroutine has exited or ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	active := o.active
	o.mu.Unlock()

	logrus.Infof("orchestrator shutting down, %d workflows outstanding", active)
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		o.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) execute(j *job) {
	defer o.wg.Done()
	res := Result{
		Handle:    j.handle,
		PatientID: j.patient.ID,
		Status:    StatusFailed,
		Reason:    ReasonShutdown,
		Err:       ErrShutdown,
	}
	if err := o.sem.Acquire(o.ctx, 1); err == nil {
		if o.ctx.Err() == nil {
			res = o.run(j)
		}
		o.sem.Release(1)
	}
	o.finish(j, res)
}

func (o *Orchestrator) finish(j *job, res Result) {
	o.mu.Lock()
	j.result = res
	o.active--
	if res.Status == StatusCompleted {
		o.completed++
	} else {
		o.failed++
	}
	close(j.done)
	o.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"patient": res.PatientID, "handle": res.Handle})
	if res.Status == StatusCompleted {
		log.Infof("workflow completed after %d visits in %s", res.Visits, res.Turnaround())
	} else {
		log.Warnf("workflow failed (%s): %v", res.Reason, res.Err)
	}
}

// failure tags a step error with a stable reason.
type failure struct {
	reason string
	err    error
}

func (f *failure) Error() string { return f.reason + ": " + f.err.Error() }
func (f *failure) Unwrap() error { return f.err }

func fail(reason string, err error) error {
	var f *failure
	if errors.As(err, &f) {
		return err
	}
	return &failure{reason: reason, err: err}
}

func (o *Orchestrator) run(j *job) Result {
	p := j.patient
	ctx, span := startSpan(o.ctx, "workflow.patient",
		attribute.String("patient", p.ID),
		attribute.String("department", p.Department),
		attribute.Int("priority", p.Priority))

	r := &runner{
		o:   o,
		p:   p,
		ctx: ctx,
		res: Result{Handle: j.handle, PatientID: p.ID, Start: o.world.Now()},
	}
	err := r.execute()
	r.res.End = o.world.Now()
	if err != nil {
		reason := ReasonInternal
		var f *failure
		if errors.As(err, &f) {
			reason = f.reason
		}
		if o.ctx.Err() != nil {
			reason = ReasonShutdown
		}
		r.res.Status = StatusFailed
		r.res.Reason = reason
		r.res.Err = err
		r.abandon(reason)
	} else {
		r.res.Status = StatusCompleted
	}
	span.SetAttributes(attribute.String("status", string(r.res.Status)), attribute.Int("visits", r.res.Visits))
	endSpan(span, err)
	return r.res
}

// runner is the state of one workflow.
type runner struct {
	o   *Orchestrator
	p   Patient
	ctx context.Context
	res Result

	clinic      string
	registered  bool
	labDone     bool
	imagingDone bool
}

func (r *runner) step(name string, fn func(ctx context.Context) error) error {
	start := r.o.world.Now()
	ctx, span := startSpan(r.ctx, "workflow."+name, attribute.String("patient", r.p.ID))
	err := fn(ctx)
	rec := StepRecord{Name: name, Start: start, End: r.o.world.Now()}
	if err != nil {
		rec.Err = err.Error()
	}
	r.res.Steps = append(r.res.Steps, rec)
	endSpan(span, err)

	log := logrus.WithFields(logrus.Fields{"patient": r.p.ID, "step": name})
	if err != nil {
		log.Debugf("step failed: %v", err)
	} else {
		log.Debug("step done")
	}
	return err
}

func (r *runner) execute() error {
	o, id := r.o, r.p.ID
	if err := r.step("register", r.register); err != nil {
		return fail(ReasonRegister, err)
	}
	r.move(r.clinic)

	enqueue := true
	for visit := 1; ; visit++ {
		if enqueue {
			if err := r.step("enqueue", func(context.Context) error { return o.coord.Enqueue(id) }); err != nil {
				return fail(ReasonInternal, err)
			}
		}
		var doctor string
		err := r.step("await_doctor", func(ctx context.Context) error {
			s, err := r.await(ctx, o.cfg.AssignmentTimeout, coordinator.Assigned, ErrAssignmentTimeout)
			doctor = s.AssignedDoctor
			return err
		})
		if err != nil {
			return fail(ReasonAssignmentTimeout, err)
		}
		r.res.Visits = visit

		var c Consultation
		if err := r.step("consult", func(ctx context.Context) error {
			var err error
			c, err = r.consult(ctx, doctor, visit)
			return err
		}); err != nil {
			return fail(ReasonConsult, err)
		}
		if err := r.step("release", func(context.Context) error { return o.coord.ReleaseDoctor(doctor) }); err != nil {
			return fail(ReasonInternal, err)
		}

		switch {
		case c.OrderLab && !r.labDone && r.p.LabExam != "":
			if err := r.step("lab", func(ctx context.Context) error {
				return r.exam(ctx, r.p.LabExam, o.coord.SendToLab, coordinator.LabReady)
			}); err != nil {
				return err
			}
			r.labDone = true
			enqueue = false
			continue
		case c.OrderImaging && !r.imagingDone && r.p.ImagingExam != "":
			if err := r.step("imaging", func(ctx context.Context) error {
				return r.exam(ctx, r.p.ImagingExam, o.coord.SendToImaging, coordinator.ImagingReady)
			}); err != nil {
				return err
			}
			r.imagingDone = true
			enqueue = false
			continue
		case c.FollowUp && visit < o.cfg.MaxVisits:
			enqueue = true
			continue
		}
		break
	}

	r.move(o.world.Lobby())
	if err := r.step("discharge", func(context.Context) error { return o.coord.Discharge(id) }); err != nil {
		return fail(ReasonInternal, err)
	}
	return nil
}

func (r *runner) register(context.Context) error {
	o, p := r.o, r.p
	clinic, ok := o.world.ClinicFor(p.Department)
	if !ok {
		return fmt.Errorf("department %q has no clinic", p.Department)
	}
	r.clinic = clinic
	if err := o.coord.RegisterPatient(p.ID, p.Info, p.Department, p.Priority); err != nil {
		return err
	}
	r.registered = true
	if ps, ok := o.world.PhysicalState(p.ID); ok {
		for _, s := range p.Symptoms {
			ps.AddSymptom(s.Name, s.Severity, s.Rate)
		}
	}
	return nil
}

// await waits up to timeout for cond. A deadline becomes onTimeout; the
// orchestrator's own cancellation is returned as ErrShutdown.
func (r *runner) await(ctx context.Context, timeout time.Duration, cond func(coordinator.Session) bool, onTimeout error) (coordinator.Session, error) {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s, err := r.o.coord.WaitFor(wctx, r.p.ID, cond)
	switch {
	case err == nil:
		return s, nil
	case r.o.ctx.Err() != nil:
		return s, ErrShutdown
	case errors.Is(err, context.DeadlineExceeded):
		return s, fmt.Errorf("after %s: %w", timeout, onTimeout)
	}
	return s, err
}

func (r *runner) consult(ctx context.Context, doctor string, visit int) (Consultation, error) {
	o := r.o
	req := ConsultRequest{
		Patient:     r.p,
		DoctorID:    doctor,
		Visit:       visit,
		LabDone:     r.labDone,
		ImagingDone: r.imagingDone,
	}
	ps, ok := o.world.PhysicalState(r.p.ID)
	if ok {
		req.Physical = ps.Summary()
	}
	c, err := o.consultant.Consult(ctx, req)
	if err != nil {
		return Consultation{}, err
	}
	if ok {
		if c.Medication != "" {
			ps.ApplyMedication(c.Medication, c.Effectiveness)
		}
		ps.RecordTreatment("consultation", fmt.Sprintf("visit %d with %s: %s", visit, doctor, c.Diagnosis))
	}
	return c, nil
}

// exam sends the patient out, books the exam and waits for the result. The
// department priority is handed to the equipment queue unchanged.
func (r *runner) exam(ctx context.Context, examType string, send func(string) error, ready func(coordinator.Session) bool) error {
	o, id := r.o, r.p.ID
	if err := send(id); err != nil {
		return fail(ReasonInternal, err)
	}
	s, _ := o.coord.GetPatient(id)
	booked, err := o.world.RequestExam(id, examType, sim.EquipmentPriorityFor(s.Priority))
	if err != nil {
		return fail(ReasonExamRequest, err)
	}
	logrus.WithFields(logrus.Fields{"patient": id, "device": booked.EquipmentID}).
		Infof("%s %s", examType, booked.Outcome)
	r.move(booked.LocationID)
	if _, err := r.await(ctx, o.cfg.ResultTimeout, ready, ErrResultTimeout); err != nil {
		return fail(ReasonResultTimeout, err)
	}
	r.move(r.clinic)
	return nil
}

// move is best-effort: a refused move leaves the patient where it is.
func (r *runner) move(target string) {
	if target == "" {
		return
	}
	here, ok := r.o.world.Spatial().LocationOf(r.p.ID)
	if !ok || here == target {
		return
	}
	if _, err := r.o.world.MoveAgent(r.p.ID, target); err != nil {
		logrus.WithField("patient", r.p.ID).Debugf("stays at %s: %v", here, err)
	}
}

// abandon cleans up after a failed workflow. Outstanding assignment and exam
// requests are left to finish; a janitor then releases whatever they bind
// and discharges the session.
func (r *runner) abandon(reason string) {
	if !r.registered {
		return
	}
	o, id := r.o, r.p.ID
	var cond func(coordinator.Session) bool
	switch reason {
	case ReasonAssignmentTimeout:
		cond = coordinator.Assigned
	case ReasonResultTimeout:
		cond = func(s coordinator.Session) bool {
			return s.Status != coordinator.StatusAwaitingLab && s.Status != coordinator.StatusAwaitingImaging
		}
	}
	if cond == nil || reason == ReasonShutdown {
		o.discharge(id)
		return
	}

	o.mu.Lock()
	o.janitors++
	o.mu.Unlock()
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		defer func() {
			o.mu.Lock()
			o.janitors--
			o.mu.Unlock()
		}()
		if _, err := o.coord.WaitFor(o.ctx, id, cond); err != nil {
			return
		}
		o.discharge(id)
	}()
}

func (o *Orchestrator) discharge(id string) {
	if err := o.coord.Discharge(id); err != nil && !errors.Is(err, coordinator.ErrUnknownPatient) {
		logrus.WithField("patient", id).Warnf("cleanup discharge: %v", err)
	}
}
