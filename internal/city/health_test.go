package city

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHealthState(t *testing.T) {
	for in, want := range map[string]HealthState{
		"Susceptible": Susceptible,
		"infected":    Infected,
		" Recovered ": Recovered,
		"Death":       Dead,
		"dead":        Dead,
	} {
		got, err := ParseHealthState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseHealthState("zombie")
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestHealthStateText(t *testing.T) {
	b, err := Infected.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Infected", string(b))

	var h HealthState
	require.NoError(t, h.UnmarshalText([]byte("Recovered")))
	assert.Equal(t, Recovered, h)
	assert.True(t, h.Terminal())
	assert.False(t, Infected.Terminal())
}

func TestHealthParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultHealthParams().Validate())

	p := DefaultHealthParams()
	p.OutbreakRate = 1.5
	assert.ErrorIs(t, p.Validate(), ErrConfig)

	p = DefaultHealthParams()
	p.Infected = HealthRow{0, 0.9, 0.09, 0.02}
	assert.ErrorIs(t, p.Validate(), ErrConfig)

	p = DefaultHealthParams()
	p.Infected = HealthRow{-0.1, 1.0, 0.1, 0}
	assert.ErrorIs(t, p.Validate(), ErrConfig)
}

func TestHealthMatrixAbsorbing(t *testing.T) {
	m := newHealthMatrix(DefaultHealthParams())
	require.NoError(t, m.Validate())
	assert.Equal(t, HealthRow{0, 0, 1, 0}, m[Recovered])
	assert.Equal(t, HealthRow{0, 0, 0, 1}, m[Dead])

	m[Dead] = HealthRow{0, 0, 0.5, 0.5}
	assert.Error(t, m.Validate())
}

func TestParsePlaceKind(t *testing.T) {
	got, err := ParsePlaceKind("Transportation")
	require.NoError(t, err)
	assert.Equal(t, Transportation, got)

	got, err = ParsePlaceKind("store")
	require.NoError(t, err)
	assert.Equal(t, Supermarket, got)

	_, err = ParsePlaceKind("Park")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "place_kind", cfgErr.Field)
}
