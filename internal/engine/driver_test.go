package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/markov-city/internal/city"
)

func seededSettings(seed int64) Settings {
	s := DefaultSettings()
	s.Seed = seed
	return s
}

func TestInitializeEmpty(t *testing.T) {
	d := NewDriver(seededSettings(1))
	h, err := d.Initialize(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.Seed)

	snap, err := d.Step()
	require.NoError(t, err)
	assert.Equal(t, city.Counts{}, snap.Counts)
	for _, n := range snap.Nodes {
		assert.Equal(t, city.Counts{}, n.Counts)
	}
}

func TestInitializeRejectsBadCounts(t *testing.T) {
	d := NewDriver(seededSettings(1))

	_, err := d.Initialize(5, 10)
	assert.ErrorIs(t, err, city.ErrConfig)
	_, err = d.Initialize(-1, 0)
	assert.ErrorIs(t, err, city.ErrConfig)
	_, err = d.Initialize(5, -1)
	assert.ErrorIs(t, err, city.ErrConfig)

	_, ok := d.Handle()
	assert.False(t, ok, "a failed initialize must not start a run")
	_, err = d.Step()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitializeRejectsBadLayout(t *testing.T) {
	s := seededSettings(1)
	s.Layout = nil
	_, err := NewDriver(s).Initialize(10, 1)
	assert.ErrorIs(t, err, city.ErrConfig)

	s = seededSettings(1)
	s.Movement[city.Hospital] = city.MovementRow{}
	_, err = NewDriver(s).Initialize(10, 1)
	assert.ErrorIs(t, err, city.ErrConfig)
}

func TestInitializeDistributesPersons(t *testing.T) {
	d := NewDriver(seededSettings(3))
	_, err := d.Initialize(53, 12)
	require.NoError(t, err)

	snap, err := d.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, city.Counts{Total: 53, Susceptible: 41, Infected: 12}, snap.Counts)

	want := map[city.NodeID]city.Counts{
		1: {Total: 13, Infected: 12, Susceptible: 1},
		2: {Total: 10, Susceptible: 10},
		3: {Total: 10, Susceptible: 10},
		4: {Total: 10, Susceptible: 10},
		5: {Total: 10, Susceptible: 10},
		6: {}, 7: {}, 8: {},
	}
	for _, n := range snap.Nodes {
		assert.Equal(t, want[n.ID], n.Counts, "node %s", n.Label)
	}
}

func TestInfectedSpillIntoNextHouse(t *testing.T) {
	d := NewDriver(seededSettings(3))
	_, err := d.Initialize(50, 15)
	require.NoError(t, err)

	snap, _ := d.Snapshot()
	h1, _ := snap.Node(1)
	h2, _ := snap.Node(2)
	assert.Equal(t, 10, h1.Infected)
	assert.Equal(t, 5, h2.Infected)
}

func TestStepConservesTotal(t *testing.T) {
	d := NewDriver(seededSettings(2024))
	_, err := d.Initialize(50, 5)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		snap, err := d.Step()
		require.NoError(t, err)
		assert.Equal(t, 50, snap.Susceptible+snap.Infected+snap.Recovered+snap.Dead)

		sum := 0
		for _, n := range snap.Nodes {
			sum += n.Total
		}
		assert.Equal(t, snap.Total, sum)
	}
}

func TestSameSeedReplays(t *testing.T) {
	run := func() city.Snapshot {
		d := NewDriver(seededSettings(77))
		_, err := d.Initialize(50, 5)
		require.NoError(t, err)
		var snap city.Snapshot
		for i := 0; i < 30; i++ {
			snap, err = d.Step()
			require.NoError(t, err)
		}
		return snap
	}
	assert.Equal(t, run(), run())
}

func TestReset(t *testing.T) {
	d := NewDriver(seededSettings(1))
	h, err := d.Initialize(10, 1)
	require.NoError(t, err)
	got, ok := d.Handle()
	require.True(t, ok)
	assert.Equal(t, h.RunID, got.RunID)

	d.Reset()
	_, ok = d.Handle()
	assert.False(t, ok)
	_, err = d.Step()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = d.Snapshot()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, d.Inspect(func(*city.City) {}), ErrNotInitialized)

	h2, err := d.Initialize(10, 1)
	require.NoError(t, err)
	assert.NotEqual(t, h.RunID, h2.RunID)
}

func TestConcurrentStepsAreSerialized(t *testing.T) {
	d := NewDriver(seededSettings(5))
	_, err := d.Initialize(50, 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := d.Step()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	snap, err := d.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), snap.Tick)
	assert.Equal(t, 50, snap.Total)
	require.NoError(t, d.Inspect(func(c *city.City) {
		assert.NoError(t, c.CheckInvariants())
	}))
}
