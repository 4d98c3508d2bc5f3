// Implements the spatial model: a graph of locations with capacities,
// plus the placement of every registered agent.

package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Location is a node of the hospital graph.
type Location struct {
	ID                string
	Name              string
	Department        string // "lobby", "clinic", "lab", "imaging", ...
	Capacity          int
	Adjacent          []string
	Actions           []string
	BusinessHoursOnly bool // access gated by the calendar
}

// LocationStatus is a read-only snapshot of a location and its occupancy.
type LocationStatus struct {
	Location
	Occupants []string
}

// Occupancy returns the number of agents at the location.
func (s LocationStatus) Occupancy() int { return len(s.Occupants) }

type locationState struct {
	Location
	adjacent  map[string]bool
	occupants map[string]bool
}

// SpatialModel owns the location graph and agent placement.
type SpatialModel struct {
	mu        sync.RWMutex
	clock     *Clock
	moveCost  time.Duration
	locations map[string]*locationState
	order     []string
	placement map[string]string // agent id -> location id
}

// NewSpatialModel builds the graph. Adjacency is made symmetric: an edge
// listed on either endpoint connects both.
func NewSpatialModel(clock *Clock, moveCost time.Duration, locations []Location) (*SpatialModel, error) {
	m := &SpatialModel{
		clock:     clock,
		moveCost:  moveCost,
		locations: make(map[string]*locationState, len(locations)),
		placement: make(map[string]string),
	}
	for _, loc := range locations {
		if loc.ID == "" {
			return nil, fmt.Errorf("location with empty id")
		}
		if _, exists := m.locations[loc.ID]; exists {
			return nil, fmt.Errorf("location %q: %w", loc.ID, ErrDuplicateID)
		}
		if loc.Capacity <= 0 {
			return nil, fmt.Errorf("location %q: capacity must be positive, got %d", loc.ID, loc.Capacity)
		}
		m.locations[loc.ID] = &locationState{
			Location:  loc,
			adjacent:  make(map[string]bool),
			occupants: make(map[string]bool),
		}
		m.order = append(m.order, loc.ID)
	}
	for _, loc := range locations {
		for _, adj := range loc.Adjacent {
			other, ok := m.locations[adj]
			if !ok {
				return nil, fmt.Errorf("location %q adjacent to %q: %w", loc.ID, adj, ErrUnknownLocation)
			}
			if adj == loc.ID {
				continue
			}
			m.locations[loc.ID].adjacent[adj] = true
			other.adjacent[loc.ID] = true
		}
	}
	for _, ls := range m.locations {
		ls.Adjacent = sortedKeys(ls.adjacent)
	}
	return m, nil
}

// Place puts a new agent at its initial location. First placement costs no time.
func (m *SpatialModel) Place(agentID, locationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.placement[agentID]; exists {
		return fmt.Errorf("agent %q: %w", agentID, ErrDuplicateID)
	}
	target, err := m.enterableLocked(locationID)
	if err != nil {
		return err
	}
	target.occupants[agentID] = true
	m.placement[agentID] = locationID
	return nil
}

// Move relocates an agent to an adjacent location and returns the movement
// cost the caller must apply to the clock. Moving to the current location is
// a free no-op. On failure placement is unchanged.
func (m *SpatialModel) Move(agentID, targetID string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	currentID, ok := m.placement[agentID]
	if !ok {
		return 0, fmt.Errorf("agent %q: %w", agentID, ErrUnknownAgent)
	}
	if currentID == targetID {
		return 0, nil
	}
	if _, known := m.locations[targetID]; !known {
		return 0, fmt.Errorf("location %q: %w", targetID, ErrUnknownLocation)
	}
	current := m.locations[currentID]
	if !current.adjacent[targetID] {
		return 0, fmt.Errorf("%s -> %s (adjacent: %v): %w", currentID, targetID, current.Adjacent, ErrNotAdjacent)
	}
	target, err := m.enterableLocked(targetID)
	if err != nil {
		return 0, err
	}
	delete(current.occupants, agentID)
	target.occupants[agentID] = true
	m.placement[agentID] = targetID
	logrus.WithFields(logrus.Fields{"agent": agentID, "from": currentID, "to": targetID}).Debug("agent moved")
	return m.moveCost, nil
}

// enterableLocked checks capacity and business hours for locationID.
func (m *SpatialModel) enterableLocked(locationID string) (*locationState, error) {
	target, ok := m.locations[locationID]
	if !ok {
		return nil, fmt.Errorf("location %q: %w", locationID, ErrUnknownLocation)
	}
	if len(target.occupants) >= target.Capacity {
		return nil, fmt.Errorf("%s (%d/%d): %w", target.Name, len(target.occupants), target.Capacity, ErrLocationFull)
	}
	if target.BusinessHoursOnly && !m.clock.IsWorkingHours() {
		return nil, fmt.Errorf("%s opens %s: %w", target.Name, m.clock.Calendar(), ErrOutsideHours)
	}
	return target, nil
}

// Remove takes an agent off the map.
func (m *SpatialModel) Remove(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	locID, ok := m.placement[agentID]
	if !ok {
		return fmt.Errorf("agent %q: %w", agentID, ErrUnknownAgent)
	}
	delete(m.locations[locID].occupants, agentID)
	delete(m.placement, agentID)
	return nil
}

// LocationOf returns the agent's current location id.
func (m *SpatialModel) LocationOf(agentID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.placement[agentID]
	return id, ok
}

// Location returns a snapshot of one location.
func (m *SpatialModel) Location(id string) (LocationStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ls, ok := m.locations[id]
	if !ok {
		return LocationStatus{}, false
	}
	return ls.snapshot(), true
}

// Locations returns snapshots of every location in declaration order.
func (m *SpatialModel) Locations() []LocationStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LocationStatus, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.locations[id].snapshot())
	}
	return out
}

// AgentCount returns the number of placed agents.
func (m *SpatialModel) AgentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.placement)
}

func (ls *locationState) snapshot() LocationStatus {
	loc := ls.Location
	loc.Adjacent = append([]string(nil), ls.Adjacent...)
	loc.Actions = append([]string(nil), ls.Actions...)
	return LocationStatus{Location: loc, Occupants: sortedKeys(ls.occupants)}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
