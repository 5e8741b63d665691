package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededReplays(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}
	assert.Equal(t, int64(7), a.Seed())
}

func TestSeededZeroPicksSeed(t *testing.T) {
	s := NewSeeded(0)
	assert.NotZero(t, s.Seed())

	replay := NewSeeded(s.Seed())
	assert.Equal(t, s.Float64(), replay.Float64())
}

func TestNewPrefersSeededWithoutKey(t *testing.T) {
	src, seed := New(11, "")
	assert.Equal(t, int64(11), seed)
	_, ok := src.(*Seeded)
	assert.True(t, ok)

	src, seed = New(11, "key")
	assert.Zero(t, seed)
	_, ok = src.(*Client)
	assert.True(t, ok)
}

func TestScripted(t *testing.T) {
	s := &Scripted{Draws: []float64{0.1, 0.2}}
	assert.Equal(t, 0.1, s.Float64())
	assert.Equal(t, 0.2, s.Float64())
	assert.Equal(t, 0.1, s.Float64())
	assert.Equal(t, 3, s.Consumed())

	assert.Zero(t, (&Scripted{}).Float64())
}
