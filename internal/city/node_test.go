package city

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted replays draws in order and wraps around.
type scripted struct {
	draws []float64
	next  int
}

func (s *scripted) Float64() float64 {
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v
}

func newTestNode(t *testing.T, kind PlaceKind) *Node {
	t.Helper()
	n, err := NewNode(1, kind, "", DefaultHealthParams())
	require.NoError(t, err)
	return n
}

func TestNewNodeDefaultsLabel(t *testing.T) {
	n := newTestNode(t, Hospital)
	assert.Equal(t, "Hospital_1", n.Label)

	_, err := NewNode(2, PlaceKind(9), "x", DefaultHealthParams())
	assert.ErrorIs(t, err, ErrConfig)
}

func TestRecalibrateHealthMatrix(t *testing.T) {
	n := newTestNode(t, House)
	healthy := &Person{ID: 1, Health: Susceptible}
	n.add(healthy)

	n.RecalibrateHealthMatrix()
	assert.Equal(t, HealthRow{1, 0, 0, 0}, n.Matrix()[Susceptible])

	sick := &Person{ID: 2, Health: Infected}
	n.add(sick)
	n.RecalibrateHealthMatrix()
	assert.InDelta(t, 0.925, n.Matrix()[Susceptible][Susceptible], 1e-12)
	assert.InDelta(t, 0.075, n.Matrix()[Susceptible][Infected], 1e-12)
	require.NoError(t, n.Matrix().Validate())

	// Exposure ends once the infected member leaves.
	require.True(t, n.remove(sick))
	n.RecalibrateHealthMatrix()
	assert.Equal(t, HealthRow{1, 0, 0, 0}, n.Matrix()[Susceptible])
}

func TestAdvanceHealthStates(t *testing.T) {
	n := newTestNode(t, House)
	s := &Person{ID: 1, Health: Susceptible}
	i := &Person{ID: 2, Health: Infected}
	r := &Person{ID: 3, Health: Recovered}
	d := &Person{ID: 4, Health: Dead}
	for _, p := range []*Person{s, i, r, d} {
		n.add(p)
	}

	n.RecalibrateHealthMatrix()
	// S: 0.95 > 0.925 -> Infected. I: 0.995 > 0.99 -> Dead. R, D: draw 0 stays.
	n.AdvanceHealthStates(&scripted{draws: []float64{0.95, 0.995, 0, 0}})

	assert.Equal(t, Infected, s.Health)
	assert.Equal(t, Dead, i.Health)
	assert.Equal(t, Recovered, r.Health)
	assert.Equal(t, Dead, d.Health)
}

func TestEmptyNode(t *testing.T) {
	n := newTestNode(t, Supermarket)
	src := &scripted{draws: []float64{0.5}}

	n.RecalibrateHealthMatrix()
	n.AdvanceHealthStates(src)
	n.RecomputeCounts()

	assert.Equal(t, Counts{}, n.Counts())
	assert.Zero(t, src.next, "an empty node consumes no draws")
}

func TestMembership(t *testing.T) {
	n := newTestNode(t, House)
	ps := []*Person{{ID: 1}, {ID: 2}, {ID: 3}}
	for _, p := range ps {
		n.add(p)
	}
	require.Equal(t, 3, n.Len())
	assert.Equal(t, NodeID(1), ps[0].At)

	require.True(t, n.remove(ps[0]))
	assert.False(t, n.remove(ps[0]))
	assert.False(t, n.Contains(ps[0]))
	assert.True(t, n.Contains(ps[1]))
	assert.True(t, n.Contains(ps[2]))
	assert.ElementsMatch(t, []*Person{ps[1], ps[2]}, n.Members())
}

func TestRecomputeCounts(t *testing.T) {
	n := newTestNode(t, House)
	states := []HealthState{Susceptible, Susceptible, Infected, Recovered, Dead, Dead}
	for i, h := range states {
		n.add(&Person{ID: PersonID(i + 1), Health: h})
	}
	n.RecomputeCounts()
	assert.Equal(t, Counts{Total: 6, Susceptible: 2, Infected: 1, Recovered: 1, Dead: 2}, n.Counts())
	assert.Equal(t, 4, n.Counts().Alive())
}
