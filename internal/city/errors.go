package city

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks invalid construction or initialization parameters.
	ErrConfig = errors.New("config error")
	// ErrInvariant marks a broken population or matrix invariant. It signals
	// a defect in the engine, never bad input.
	ErrInvariant = errors.New("invariant violation")
)

// ConfigError describes a rejected configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Reason)
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfig) match any *ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// InvariantViolation describes a state the engine must never reach.
type InvariantViolation struct {
	Tick   uint64
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation at tick %d: %s", e.Tick, e.Reason)
}

func (e *InvariantViolation) Is(target error) bool { return target == ErrInvariant }
