package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSpatial builds a - b - c where c is gated by business hours.
func newTestSpatial(t *testing.T, at time.Time) *SpatialModel {
	t.Helper()
	m, err := NewSpatialModel(NewClock(at, DefaultCalendar()), 3*time.Minute, []Location{
		{ID: "a", Name: "A", Capacity: 2, Adjacent: []string{"b"}},
		{ID: "b", Name: "B", Capacity: 1, Adjacent: []string{"c"}},
		{ID: "c", Name: "C", Capacity: 5, BusinessHoursOnly: true},
	})
	require.NoError(t, err)
	return m
}

func TestSpatialModel_AdjacencyIsSymmetric(t *testing.T) {
	m := newTestSpatial(t, t0)

	b, ok := m.Location("b")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, b.Adjacent)
	c, _ := m.Location("c")
	assert.Equal(t, []string{"b"}, c.Adjacent)
}

func TestSpatialModel_Move_ReturnsCost(t *testing.T) {
	// GIVEN an agent in a
	m := newTestSpatial(t, t0)
	require.NoError(t, m.Place("x", "a"))

	// WHEN it moves to the adjacent b
	cost, err := m.Move("x", "b")

	// THEN the move costs the configured minutes and occupancy follows
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, cost)
	loc, _ := m.LocationOf("x")
	assert.Equal(t, "b", loc)
	b, _ := m.Location("b")
	assert.Equal(t, []string{"x"}, b.Occupants)
	a, _ := m.Location("a")
	assert.Equal(t, 0, a.Occupancy())
}

func TestSpatialModel_Move_SameLocationIsFree(t *testing.T) {
	m := newTestSpatial(t, t0)
	require.NoError(t, m.Place("x", "a"))

	cost, err := m.Move("x", "a")

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cost)
}

func TestSpatialModel_Move_Rejections_LeavePlacement(t *testing.T) {
	m := newTestSpatial(t, t0)
	require.NoError(t, m.Place("x", "a"))
	require.NoError(t, m.Place("y", "b"))

	tests := []struct {
		name   string
		agent  string
		target string
		want   error
	}{
		{"not adjacent", "x", "c", ErrNotAdjacent},
		{"full", "x", "b", ErrLocationFull},
		{"unknown location", "x", "nowhere", ErrUnknownLocation},
		{"unknown agent", "ghost", "b", ErrUnknownAgent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Move(tc.agent, tc.target)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	loc, _ := m.LocationOf("x")
	assert.Equal(t, "a", loc)
}

func TestSpatialModel_GatedLocation_ClosedOutsideHours(t *testing.T) {
	// GIVEN the clock at 19:00
	m := newTestSpatial(t, time.Date(2024, 1, 1, 19, 0, 0, 0, time.UTC))
	require.NoError(t, m.Place("x", "b"))

	// WHEN the agent tries to enter the gated location
	_, err := m.Move("x", "c")

	// THEN it is refused
	assert.ErrorIs(t, err, ErrOutsideHours)
	assert.ErrorIs(t, m.Place("y", "c"), ErrOutsideHours)
}

func TestSpatialModel_PlaceAndRemove(t *testing.T) {
	m := newTestSpatial(t, t0)
	require.NoError(t, m.Place("x", "a"))
	assert.ErrorIs(t, m.Place("x", "a"), ErrDuplicateID)
	assert.Equal(t, 1, m.AgentCount())

	require.NoError(t, m.Remove("x"))
	assert.ErrorIs(t, m.Remove("x"), ErrUnknownAgent)
	assert.Equal(t, 0, m.AgentCount())
	assert.Len(t, m.Locations(), 3)
}

func TestNewSpatialModel_RejectsBadGraph(t *testing.T) {
	clock := NewClock(t0, DefaultCalendar())
	_, err := NewSpatialModel(clock, 0, []Location{{ID: "a", Capacity: 1, Adjacent: []string{"z"}}})
	assert.ErrorIs(t, err, ErrUnknownLocation)
	_, err = NewSpatialModel(clock, 0, []Location{{ID: "a", Capacity: 1}, {ID: "a", Capacity: 1}})
	assert.ErrorIs(t, err, ErrDuplicateID)
	_, err = NewSpatialModel(clock, 0, []Location{{ID: "a"}})
	assert.Error(t, err)
}
