// Package city provides the epidemic model: persons, nodes and the city that
// steps them through health transitions and movement.
package city

import (
	"fmt"
	"math"
	"strings"
)

// HealthState is a person's position in the disease progression.
type HealthState uint8

const (
	Susceptible HealthState = iota
	Infected
	Recovered
	Dead
)

// NumHealthStates is the number of rows (and columns) in a HealthMatrix.
const NumHealthStates = 4

// rowTolerance bounds how far a transition row may drift from 1.0.
const rowTolerance = 1e-9

var healthNames = [NumHealthStates]string{"Susceptible", "Infected", "Recovered", "Dead"}

// String returns the state's name.
func (h HealthState) String() string {
	if int(h) < len(healthNames) {
		return healthNames[h]
	}
	return fmt.Sprintf("HealthState(%d)", h)
}

// Terminal reports whether no transition can leave the state.
func (h HealthState) Terminal() bool {
	return h == Recovered || h == Dead
}

// MarshalText encodes the state by name.
func (h HealthState) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a state name.
func (h *HealthState) UnmarshalText(b []byte) error {
	parsed, err := ParseHealthState(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHealthState maps a case-insensitive name to a HealthState.
// "Death" is accepted for Dead.
func ParseHealthState(s string) (HealthState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "susceptible":
		return Susceptible, nil
	case "infected":
		return Infected, nil
	case "recovered", "cured":
		return Recovered, nil
	case "dead", "death":
		return Dead, nil
	}
	return 0, &ConfigError{Field: "health_state", Reason: fmt.Sprintf("unknown health state %q", s)}
}

// HealthRow is a probability vector over next health states.
type HealthRow [NumHealthStates]float64

// HealthMatrix maps a current health state to its row of next-state probabilities.
type HealthMatrix [NumHealthStates]HealthRow

// HealthParams are the tunable parts of a node's health matrix.
// The Susceptible row is derived from OutbreakRate on every recalibration,
// and the Recovered and Dead rows are always identity.
type HealthParams struct {
	OutbreakRate float64
	Infected     HealthRow
}

// DefaultHealthParams returns the reference disease: 7.5% infection chance
// in an exposed node, 9% daily recovery and 1% mortality while infected.
func DefaultHealthParams() HealthParams {
	return HealthParams{
		OutbreakRate: 0.075,
		Infected:     HealthRow{0.0, 0.9, 0.09, 0.01},
	}
}

// Validate checks the outbreak rate and the infected row.
func (p HealthParams) Validate() error {
	if math.IsNaN(p.OutbreakRate) || p.OutbreakRate < 0 || p.OutbreakRate > 1 {
		return &ConfigError{Field: "health.outbreak_rate", Reason: fmt.Sprintf("must be within [0, 1], got %v", p.OutbreakRate)}
	}
	if err := validateRow(p.Infected[:]); err != nil {
		return &ConfigError{Field: "health.infected", Reason: err.Error()}
	}
	return nil
}

// newHealthMatrix builds a matrix with no outbreak in effect.
func newHealthMatrix(p HealthParams) HealthMatrix {
	var m HealthMatrix
	m[Susceptible] = HealthRow{1, 0, 0, 0}
	m[Infected] = p.Infected
	m[Recovered] = HealthRow{0, 0, 1, 0}
	m[Dead] = HealthRow{0, 0, 0, 1}
	return m
}

// Validate checks that every row is a distribution and that the terminal
// rows are absorbing.
func (m HealthMatrix) Validate() error {
	for i, row := range m {
		if err := validateRow(row[:]); err != nil {
			return fmt.Errorf("row %s: %w", HealthState(i), err)
		}
	}
	for _, h := range []HealthState{Recovered, Dead} {
		if m[h][h] != 1 {
			return fmt.Errorf("row %s is not absorbing", h)
		}
	}
	return nil
}

func validateRow(row []float64) error {
	sum := 0.0
	for i, p := range row {
		if math.IsNaN(p) || p < 0 {
			return fmt.Errorf("probability %d is %v", i, p)
		}
		sum += p
	}
	if math.Abs(sum-1) > rowTolerance {
		return fmt.Errorf("row sums to %v, want 1", sum)
	}
	return nil
}
