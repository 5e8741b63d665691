package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/markov-city/internal/city"
)

type countingStepper struct {
	mu    sync.Mutex
	ticks uint64
	err   error
}

func (s *countingStepper) Step() (city.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return city.Snapshot{}, s.err
	}
	s.ticks++
	return city.Snapshot{Tick: s.ticks}, nil
}

func (s *countingStepper) count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func TestEngineRunsUntilCancelled(t *testing.T) {
	st := &countingStepper{}
	e := NewEngine(st)
	e.Interval = time.Millisecond
	e.ReportEvery = 5

	var mu sync.Mutex
	var reports []uint64
	e.OnReport = func(s city.Snapshot) {
		mu.Lock()
		reports = append(reports, s.Tick)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return st.count() >= 10 }, 2*time.Second, time.Millisecond)
	assert.True(t, e.Running())
	cancel()
	require.NoError(t, <-done)
	assert.False(t, e.Running())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reports)
	for _, tick := range reports {
		assert.Zero(t, tick%5)
	}
}

func TestEngineStop(t *testing.T) {
	e := NewEngine(&countingStepper{})
	e.Interval = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	require.Eventually(t, e.Running, time.Second, time.Millisecond)

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	e.Stop() // no-op once stopped
}

func TestEnginePausedDoesNotStep(t *testing.T) {
	st := &countingStepper{}
	e := NewEngine(st)
	e.Interval = time.Millisecond
	e.SetSpeed(0)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Zero(t, st.count())
}

func TestEngineIdlesUntilInitialized(t *testing.T) {
	d := NewDriver(seededSettings(1))
	e := NewEngine(d)
	e.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	_, err := d.Initialize(20, 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := d.Snapshot()
		return err == nil && s.Tick >= 3
	}, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestEngineHaltsOnInvariantViolation(t *testing.T) {
	violation := &city.InvariantViolation{Tick: 1, Reason: "leak"}
	e := NewEngine(&countingStepper{err: violation})
	e.Interval = time.Millisecond

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, city.ErrInvariant)
}

func TestEngineRejectsSecondRun(t *testing.T) {
	e := NewEngine(&countingStepper{})
	e.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go e.Run(ctx)
	require.Eventually(t, e.Running, time.Second, time.Millisecond)
	assert.Error(t, e.Run(ctx))
}
