package city

import (
	"fmt"
	"strings"
)

// PlaceKind is the category of a node and selects its movement row.
type PlaceKind uint8

const (
	House PlaceKind = iota
	Supermarket
	Hospital
	Transportation
)

// NumPlaceKinds is the number of rows (and columns) in a MovementMatrix.
const NumPlaceKinds = 4

var placeNames = [NumPlaceKinds]string{"House", "Supermarket", "Hospital", "Transportation"}

func (k PlaceKind) String() string {
	if int(k) < len(placeNames) {
		return placeNames[k]
	}
	return fmt.Sprintf("PlaceKind(%d)", k)
}

// MarshalText encodes the kind by name.
func (k PlaceKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *PlaceKind) UnmarshalText(b []byte) error {
	parsed, err := ParsePlaceKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePlaceKind maps a case-insensitive name to a PlaceKind.
func ParsePlaceKind(s string) (PlaceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "house", "home":
		return House, nil
	case "supermarket", "store":
		return Supermarket, nil
	case "hospital":
		return Hospital, nil
	case "transportation", "bus":
		return Transportation, nil
	}
	return 0, &ConfigError{Field: "place_kind", Reason: fmt.Sprintf("unknown place kind %q", s)}
}

// MovementRow is a probability vector over destination place kinds.
type MovementRow [NumPlaceKinds]float64

// MovementMatrix maps the kind of a person's current node to the
// probabilities of the kind they move to next. An all-zero row means the
// kind has no entry.
type MovementMatrix [NumPlaceKinds]MovementRow

// DefaultMovementMatrix returns the reference city's daily movement pattern.
func DefaultMovementMatrix() MovementMatrix {
	return MovementMatrix{
		House:          {0.75, 0.1, 0.05, 0.1},
		Supermarket:    {0.5, 0.4, 0.0, 0.1},
		Hospital:       {0.5, 0.0, 0.4, 0.1},
		Transportation: {0.6, 0.15, 0.05, 0.2},
	}
}

// HasRow reports whether the matrix carries an entry for kind.
func (m MovementMatrix) HasRow(kind PlaceKind) bool {
	for _, p := range m[kind] {
		if p != 0 {
			return true
		}
	}
	return false
}
