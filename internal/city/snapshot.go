package city

import (
	"fmt"
	"strings"
)

// Counts tallies persons by health state.
type Counts struct {
	Total       int `json:"total"`
	Susceptible int `json:"susceptible"`
	Infected    int `json:"infected"`
	Recovered   int `json:"recovered"`
	Dead        int `json:"dead"`
}

func (c *Counts) add(h HealthState) {
	c.Total++
	switch h {
	case Susceptible:
		c.Susceptible++
	case Infected:
		c.Infected++
	case Recovered:
		c.Recovered++
	case Dead:
		c.Dead++
	}
}

// Plus returns the field-wise sum of c and o.
func (c Counts) Plus(o Counts) Counts {
	return Counts{
		Total:       c.Total + o.Total,
		Susceptible: c.Susceptible + o.Susceptible,
		Infected:    c.Infected + o.Infected,
		Recovered:   c.Recovered + o.Recovered,
		Dead:        c.Dead + o.Dead,
	}
}

// Alive returns the number of persons not dead.
func (c Counts) Alive() int {
	return c.Total - c.Dead
}

// NodeSnapshot is the read-only view of one node.
type NodeSnapshot struct {
	ID    NodeID    `json:"id"`
	Kind  PlaceKind `json:"kind"`
	Label string    `json:"label"`
	Counts
}

// Snapshot is the read-only view of the city after a tick.
type Snapshot struct {
	Tick uint64 `json:"tick"`
	Counts
	Nodes []NodeSnapshot `json:"nodes"`
}

// Node returns the snapshot of the node with the given id.
func (s Snapshot) Node(id NodeID) (NodeSnapshot, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSnapshot{}, false
}

// String renders the snapshot in the compact T/S/I/C/D form used by the
// city's node labels.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick %d  T:%d S:%d I:%d C:%d D:%d\n",
		s.Tick, s.Total, s.Susceptible, s.Infected, s.Recovered, s.Dead)
	for _, n := range s.Nodes {
		fmt.Fprintf(&b, "  %-16s T:%d S:%d I:%d C:%d D:%d\n",
			n.Label, n.Total, n.Susceptible, n.Infected, n.Recovered, n.Dead)
	}
	return b.String()
}
