package city

// Source supplies uniform draws in [0, 1). *rand.Rand satisfies it.
// A City consumes its Source sequentially from a single goroutine.
type Source interface {
	Float64() float64
}

// pick walks the cumulative distribution of row and returns the first index
// whose cumulative bound is >= draw. Zero-probability entries never match,
// so a draw of exactly 0 cannot select an impossible state. When drift
// leaves the draw above the final bound, pick returns the last positive
// index and ok=false.
func pick(row []float64, draw float64) (idx int, ok bool) {
	cum := 0.0
	last := len(row) - 1
	for i, p := range row {
		if p <= 0 {
			continue
		}
		last = i
		cum += p
		if draw <= cum {
			return i, true
		}
	}
	return last, false
}
