// Package engine builds cities from settings and advances them: the Driver
// owns one run at a time and the Engine steps it on a timer.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/markov-city/internal/city"
	"github.com/talgya/markov-city/internal/entropy"
)

// ErrNotInitialized is returned by Step and Snapshot when no run is active.
var ErrNotInitialized = errors.New("simulation not initialized")

// Settings describe the city every run is built from.
type Settings struct {
	Layout   []city.NodeSpec
	Health   city.HealthParams
	Movement city.MovementMatrix
	Seed     int64 // 0 = random seed per run

	// NewSource creates the random source for a run and reports the seed
	// actually used. Defaults to a seeded math/rand source.
	NewSource func(seed int64) (city.Source, int64)
}

// DefaultSettings returns the reference toy city.
func DefaultSettings() Settings {
	return Settings{
		Layout:   city.ReferenceLayout(),
		Health:   city.DefaultHealthParams(),
		Movement: city.DefaultMovementMatrix(),
	}
}

// Handle identifies an initialized run.
type Handle struct {
	RunID     uuid.UUID `json:"run_id"`
	Seed      int64     `json:"seed"`
	Total     int       `json:"total"`
	Infected  int       `json:"infected"`
	StartedAt time.Time `json:"started_at"`
}

// Driver holds the current run. All methods are safe for concurrent use;
// Step calls are serialized.
type Driver struct {
	settings Settings

	mu     sync.Mutex
	city   *city.City
	handle Handle
}

// NewDriver creates a driver in the pre-initialize state.
func NewDriver(s Settings) *Driver {
	if s.NewSource == nil {
		s.NewSource = func(seed int64) (city.Source, int64) {
			src := entropy.NewSeeded(seed)
			return src, src.Seed()
		}
	}
	return &Driver{settings: s}
}

// Initialize builds a fresh city holding total persons, the first infected
// of whom start Infected. Persons are split evenly across the houses with
// the remainder going to the first house. Any previous run is discarded.
// On error the driver keeps its previous state.
func (d *Driver) Initialize(total, infected int) (Handle, error) {
	if total < 0 || infected < 0 {
		return Handle{}, &city.ConfigError{Field: "population", Reason: fmt.Sprintf("counts must be non-negative (total=%d, infected=%d)", total, infected)}
	}
	if infected > total {
		return Handle{}, &city.ConfigError{Field: "population", Reason: fmt.Sprintf("infected %d exceeds total %d", infected, total)}
	}

	src, seed := d.settings.NewSource(d.settings.Seed)
	c, err := city.New(d.settings.Layout, d.settings.Health, d.settings.Movement, src)
	if err != nil {
		return Handle{}, fmt.Errorf("build city: %w", err)
	}
	if err := populate(c, total, infected); err != nil {
		return Handle{}, fmt.Errorf("populate city: %w", err)
	}

	h := Handle{
		RunID:     uuid.New(),
		Seed:      seed,
		Total:     total,
		Infected:  infected,
		StartedAt: time.Now().UTC(),
	}

	d.mu.Lock()
	d.city = c
	d.handle = h
	d.mu.Unlock()

	slog.Info("simulation initialized",
		"run_id", h.RunID,
		"seed", seed,
		"total", total,
		"infected", infected,
		"nodes", len(d.settings.Layout),
	)
	return h, nil
}

// populate splits total across the houses and marks the first infected
// persons, in house order, as Infected.
func populate(c *city.City, total, infected int) error {
	houses := c.Houses()
	if len(houses) == 0 {
		if total > 0 {
			return &city.ConfigError{Field: "nodes", Reason: "no House node to place persons in"}
		}
		return nil
	}

	per := total / len(houses)
	remainder := total % len(houses)
	for i, h := range houses {
		n := per
		if i == 0 {
			n += remainder
		}
		sick := min(infected, n)
		infected -= sick
		if err := c.GeneratePersons(h.ID, n, sick); err != nil {
			return err
		}
	}
	return nil
}

// Step advances the run by one tick and returns the refreshed snapshot.
// A non-nil error other than ErrNotInitialized is a city.InvariantViolation.
func (d *Driver) Step() (city.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.city == nil {
		return city.Snapshot{}, ErrNotInitialized
	}
	err := d.city.Step()
	return d.city.Snapshot(), err
}

// Snapshot returns the current state without advancing.
func (d *Driver) Snapshot() (city.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.city == nil {
		return city.Snapshot{}, ErrNotInitialized
	}
	return d.city.Snapshot(), nil
}

// Handle returns the active run, if any.
func (d *Driver) Handle() (Handle, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle, d.city != nil
}

// Reset discards the run and returns the driver to its pre-initialize state.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.city != nil {
		slog.Info("simulation reset", "run_id", d.handle.RunID, "tick", d.city.Tick())
	}
	d.city = nil
	d.handle = Handle{}
}

// Inspect runs fn with exclusive access to the live city. fn must not keep
// references past its return.
func (d *Driver) Inspect(fn func(c *city.City)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.city == nil {
		return ErrNotInitialized
	}
	fn(d.city)
	return nil
}
