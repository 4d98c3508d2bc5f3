// Implements World, the aggregate that owns the clock, the spatial model,
// the equipment scheduler and every agent's PhysicalState.
//
// Lock order: advanceMu -> scheduler.mu -> clock.mu, statesMu -> spatial.mu
// -> clock.mu, statesMu -> scheduler.mu, and statesMu -> PhysicalState.mu.
// Subscribers are called with no world lock held, in simulated-time order.

package sim

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AgentKind distinguishes patients from staff.
type AgentKind string

const (
	AgentPatient AgentKind = "patient"
	AgentDoctor  AgentKind = "doctor"
	AgentNurse   AgentKind = "nurse"
)

// AdvanceResult summarizes one Advance call.
type AdvanceResult struct {
	From          time.Time
	To            time.Time
	DayBoundaries int
	Completed     []ExamCompletion
	Evolved       int // PhysicalStates that evolved
}

// World is shared by every workflow.
type World struct {
	advanceMu sync.Mutex
	// dispatchMu keeps subscriber delivery in Advance order.
	dispatchMu sync.Mutex

	clock     *Clock
	spatial   *SpatialModel
	scheduler *EquipmentScheduler
	recorder  Recorder

	statesMu sync.RWMutex
	states   map[string]*PhysicalState
	kinds    map[string]AgentKind

	hooksMu   sync.RWMutex
	dayHooks  []func(DayBoundary)
	examHooks []func(ExamCompletion)
	hooks     []func(Event)

	lobby         string
	departments   map[string]string
	advanceOnMove bool
	historyLimit  int
}

// NewWorld validates cfg and builds a world. recorder may be nil.
func NewWorld(cfg WorldConfig, recorder Recorder) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("world config: %w", err)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	start, _ := cfg.startTime()
	cal, _ := cfg.calendar()
	clock := NewClock(start, cal)
	spatial, err := NewSpatialModel(clock, cfg.moveCost(), cfg.locations())
	if err != nil {
		return nil, err
	}
	scheduler, err := NewEquipmentScheduler(clock, cfg.schedulerConfig(), cfg.equipment(), recorder)
	if err != nil {
		return nil, err
	}
	departments := make(map[string]string, len(cfg.Departments))
	for d, loc := range cfg.Departments {
		departments[d] = loc
	}
	logrus.Infof("world ready: %d locations, %d devices, clock %s, hours %s",
		len(cfg.Locations), len(cfg.Equipment), start.Format(time.RFC3339), cal)
	return &World{
		clock:         clock,
		spatial:       spatial,
		scheduler:     scheduler,
		recorder:      recorder,
		states:        make(map[string]*PhysicalState),
		kinds:         make(map[string]AgentKind),
		lobby:         cfg.lobby(),
		departments:   departments,
		advanceOnMove: cfg.moveAdvancesClock(),
		historyLimit:  cfg.vitalsHistory(),
	}, nil
}

// Clock returns the world clock (read-only use).
func (w *World) Clock() *Clock { return w.clock }

// Now returns the current simulated time.
func (w *World) Now() time.Time { return w.clock.Now() }

// Spatial returns the spatial model.
func (w *World) Spatial() *SpatialModel { return w.spatial }

// Scheduler returns the equipment scheduler.
func (w *World) Scheduler() *EquipmentScheduler { return w.scheduler }

// Lobby returns the id of the registration location.
func (w *World) Lobby() string { return w.lobby }

// ClinicFor returns the clinic location of a department.
func (w *World) ClinicFor(department string) (string, bool) {
	loc, ok := w.departments[department]
	return loc, ok
}

// Departments returns the configured department names, sorted.
func (w *World) Departments() []string {
	out := make([]string, 0, len(w.departments))
	for d := range w.departments {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// OnDayBoundary subscribes fn to midnight crossings.
func (w *World) OnDayBoundary(fn func(DayBoundary)) {
	w.hooksMu.Lock()
	defer w.hooksMu.Unlock()
	w.dayHooks = append(w.dayHooks, fn)
}

// OnExamComplete subscribes fn to exam completions.
func (w *World) OnExamComplete(fn func(ExamCompletion)) {
	w.hooksMu.Lock()
	defer w.hooksMu.Unlock()
	w.examHooks = append(w.examHooks, fn)
}

// OnEvent subscribes fn to every event produced by Advance.
func (w *World) OnEvent(fn func(Event)) {
	w.hooksMu.Lock()
	defer w.hooksMu.Unlock()
	w.hooks = append(w.hooks, fn)
}

// Advance moves the clock forward by d. Each midnight crossed is swept up to,
// then daily equipment counters reset and day-boundary subscribers are
// notified. The final sweep and the physiology pass run against the new time
// as one batch.
// Concurrent calls are serialized.
func (w *World) Advance(d time.Duration) AdvanceResult {
	w.advanceMu.Lock()

	w.scheduler.mu.Lock()
	from, to, crossed := w.clock.advance(d)
	queue := &EventQueue{}
	result := AdvanceResult{From: from, To: to}
	collect := func(events []Event) {
		for _, ev := range events {
			queue.Schedule(ev)
			if done, ok := ev.(ExamCompletion); ok {
				result.Completed = append(result.Completed, done)
			}
		}
	}
	if crossed {
		// Exams started before midnight count against the day they started in.
		for day := nextMidnight(from); !day.After(to); day = day.AddDate(0, 0, 1) {
			collect(w.scheduler.sweepLocked(day.Add(-time.Nanosecond)))
			w.scheduler.resetDailyLocked()
			collect(w.scheduler.sweepLocked(day))
			queue.Schedule(DayBoundary{Day: day})
			result.DayBoundaries++
		}
	}
	collect(w.scheduler.sweepLocked(to))
	w.scheduler.mu.Unlock()

	w.statesMu.RLock()
	for _, ps := range w.states {
		if ps.Advance(to) {
			result.Evolved++
		}
	}
	w.statesMu.RUnlock()

	w.dispatchMu.Lock()
	w.advanceMu.Unlock()
	defer w.dispatchMu.Unlock()

	for ev := queue.PopNext(); ev != nil; ev = queue.PopNext() {
		if b, ok := ev.(DayBoundary); ok {
			logrus.Infof("day boundary %s", b.Day.Format("2006-01-02"))
			w.recorder.Record(b.Day, string(EventDayBoundary), "clock", b.Day.Format("2006-01-02"))
		}
		w.dispatch(ev)
	}
	return result
}

// AdvanceMinutes is Advance in whole simulated minutes.
func (w *World) AdvanceMinutes(minutes int) AdvanceResult {
	return w.Advance(time.Duration(minutes) * time.Minute)
}

func (w *World) dispatch(ev Event) {
	w.hooksMu.RLock()
	hooks := slices.Clone(w.hooks)
	dayHooks := slices.Clone(w.dayHooks)
	examHooks := slices.Clone(w.examHooks)
	w.hooksMu.RUnlock()

	switch e := ev.(type) {
	case DayBoundary:
		for _, fn := range dayHooks {
			fn(e)
		}
	case ExamCompletion:
		for _, fn := range examHooks {
			fn(e)
		}
	}
	for _, fn := range hooks {
		fn(ev)
	}
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// AddAgent places a new agent and gives it a fresh PhysicalState.
func (w *World) AddAgent(id string, kind AgentKind, locationID string) error {
	w.statesMu.Lock()
	defer w.statesMu.Unlock()
	if _, exists := w.states[id]; exists {
		return fmt.Errorf("agent %q: %w", id, ErrDuplicateID)
	}
	if err := w.spatial.Place(id, locationID); err != nil {
		return err
	}
	w.states[id] = NewPhysicalState(id, w.clock.Now(), w.historyLimit)
	w.kinds[id] = kind
	logrus.WithFields(logrus.Fields{"agent": id, "kind": kind}).Infof("agent added at %s", locationID)
	return nil
}

// RemoveAgent takes an agent off the map, withdraws it from equipment queues
// and reservations, and detaches its PhysicalState, which is returned.
func (w *World) RemoveAgent(id string) (*PhysicalState, error) {
	w.statesMu.Lock()
	defer w.statesMu.Unlock()
	ps, ok := w.states[id]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", id, ErrUnknownAgent)
	}
	if err := w.spatial.Remove(id); err != nil {
		return nil, err
	}
	w.scheduler.Withdraw(id)
	delete(w.states, id)
	delete(w.kinds, id)
	logrus.WithField("agent", id).Info("agent removed")
	return ps, nil
}

// MoveAgent moves an agent to an adjacent location. Unless disabled in the
// config, the movement cost is applied to the clock. Returns the cost.
func (w *World) MoveAgent(id, target string) (time.Duration, error) {
	from, _ := w.spatial.LocationOf(id)
	cost, err := w.spatial.Move(id, target)
	if err != nil {
		return 0, err
	}
	if cost > 0 {
		w.recorder.Record(w.clock.Now(), string(EventAgentMoved), id, from+" -> "+target)
		if w.advanceOnMove {
			w.Advance(cost)
		}
	}
	return cost, nil
}

// RequestExam asks the scheduler for an exam on behalf of a registered agent.
func (w *World) RequestExam(agentID, examType string, priority int) (RequestResult, error) {
	if !w.HasAgent(agentID) {
		return RequestResult{}, fmt.Errorf("agent %q: %w", agentID, ErrUnknownAgent)
	}
	return w.scheduler.Request(agentID, examType, priority)
}

// HasAgent reports whether id is registered.
func (w *World) HasAgent(id string) bool {
	w.statesMu.RLock()
	defer w.statesMu.RUnlock()
	_, ok := w.states[id]
	return ok
}

// PhysicalState returns the live state of an agent.
func (w *World) PhysicalState(id string) (*PhysicalState, bool) {
	w.statesMu.RLock()
	defer w.statesMu.RUnlock()
	ps, ok := w.states[id]
	return ps, ok
}

// IsCritical reports whether a registered agent is in critical condition.
func (w *World) IsCritical(id string) bool {
	ps, ok := w.PhysicalState(id)
	return ok && ps.CheckCritical()
}

// AgentCount returns the number of registered agents.
func (w *World) AgentCount() int {
	w.statesMu.RLock()
	defer w.statesMu.RUnlock()
	return len(w.states)
}

// Neighbor describes an adjacent location from an observer's point of view.
type Neighbor struct {
	ID        string
	Name      string
	Occupancy int
	Capacity  int
	Open      bool
}

// Observation is what an agent perceives at its location.
type Observation struct {
	AgentID      string
	At           time.Time
	WorkingHours bool
	Location     LocationStatus
	Neighbors    []Neighbor
	Equipment    []EquipmentStatusView
	Physical     *PhysicalSummary
}

// Observe returns the agent's surroundings and, when present, its physiology.
func (w *World) Observe(agentID string) (Observation, error) {
	locID, ok := w.spatial.LocationOf(agentID)
	if !ok {
		return Observation{}, fmt.Errorf("agent %q: %w", agentID, ErrUnknownAgent)
	}
	here, _ := w.spatial.Location(locID)
	working := w.clock.IsWorkingHours()
	obs := Observation{
		AgentID:      agentID,
		At:           w.clock.Now(),
		WorkingHours: working,
		Location:     here,
		Equipment:    w.scheduler.Status("", locID),
	}
	for _, adj := range here.Adjacent {
		n, ok := w.spatial.Location(adj)
		if !ok {
			continue
		}
		obs.Neighbors = append(obs.Neighbors, Neighbor{
			ID: n.ID, Name: n.Name, Occupancy: n.Occupancy(), Capacity: n.Capacity,
			Open: !n.BusinessHoursOnly || working,
		})
	}
	if ps, ok := w.PhysicalState(agentID); ok {
		s := ps.Summary()
		obs.Physical = &s
	}
	return obs, nil
}
