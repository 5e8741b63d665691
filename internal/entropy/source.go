package entropy

import (
	"log/slog"
	"math/rand"

	"github.com/talgya/markov-city/internal/city"
)

// Seeded is a deterministic source; equal seeds replay equal runs.
type Seeded struct {
	*rand.Rand
	seed int64
}

// NewSeeded creates a deterministic source. A zero seed picks a random one,
// which Seed reports so the run can be replayed.
func NewSeeded(seed int64) *Seeded {
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Seeded{Rand: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed returns the seed the source was created with.
func (s *Seeded) Seed() int64 {
	return s.seed
}

// New picks the source for a run: random.org when an API key is given,
// otherwise a seeded generator. The returned seed is 0 for random.org.
func New(seed int64, apiKey string) (city.Source, int64) {
	if c := NewClient(apiKey); c != nil {
		slog.Info("using random.org entropy")
		return c, 0
	}
	s := NewSeeded(seed)
	return s, s.Seed()
}

// Scripted replays a fixed sequence of draws, wrapping around at the end.
type Scripted struct {
	Draws []float64
	next  int
}

// Float64 returns the next scripted draw.
func (s *Scripted) Float64() float64 {
	if len(s.Draws) == 0 {
		return 0
	}
	v := s.Draws[s.next%len(s.Draws)]
	s.next++
	return v
}

// Consumed returns the number of draws taken so far.
func (s *Scripted) Consumed() int {
	return s.next
}
