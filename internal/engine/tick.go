package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/markov-city/internal/city"
)

// DefaultInterval is the wall-clock time between ticks at speed 1.
const DefaultInterval = 2 * time.Second

// pausePoll is how often a paused engine checks for a speed change.
const pausePoll = 100 * time.Millisecond

// Stepper advances a simulation by one tick. *Driver implements it.
type Stepper interface {
	Step() (city.Snapshot, error)
}

// Engine drives a Stepper forward on a timer.
type Engine struct {
	Interval    time.Duration // Base tick interval
	ReportEvery uint64        // Call OnReport every N ticks; 0 disables

	// Callbacks, populated during setup.
	OnTick   func(s city.Snapshot)
	OnReport func(s city.Snapshot)

	stepper Stepper

	mu      sync.Mutex
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine with default settings.
func NewEngine(s Stepper) *Engine {
	return &Engine{
		Interval: DefaultInterval,
		stepper:  s,
		speed:    1.0,
	}
}

// Run steps until ctx is done or Stop is called. While nothing is
// initialized the engine idles. An invariant violation stops the engine and
// is returned.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.running = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.stop = nil
		e.mu.Unlock()
	}()

	slog.Info("simulation engine started", "interval", e.Interval, "speed", e.Speed())

	for {
		wait := pausePoll
		if speed := e.Speed(); speed > 0 {
			start := time.Now()
			if err := e.step(); err != nil {
				return err
			}
			// Sleep for the remainder of the tick interval, adjusted for speed.
			wait = time.Duration(float64(e.Interval)/speed) - time.Since(start)
			if wait < 0 {
				wait = 0
			}
		}

		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "reason", ctx.Err())
			return nil
		case <-stop:
			slog.Info("simulation engine stopped", "reason", "stop requested")
			return nil
		case <-time.After(wait):
		}
	}
}

func (e *Engine) step() error {
	snap, err := e.stepper.Step()
	switch {
	case errors.Is(err, ErrNotInitialized):
		return nil
	case err != nil:
		slog.Error("tick failed, halting engine", "error", err)
		return err
	}

	if e.OnTick != nil {
		e.OnTick(snap)
	}
	if e.ReportEvery > 0 && snap.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(snap)
	}
	return nil
}

// Stop halts a running engine. It is a no-op otherwise.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier; values <= 0 pause the engine.
func (e *Engine) SetSpeed(v float64) {
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
	slog.Info("engine speed changed", "speed", v)
}
