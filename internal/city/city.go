package city

import (
	"fmt"
	"log/slog"
	"strings"
)

// Move records one person relocating during a tick.
type Move struct {
	Person *Person
	From   NodeID
	To     NodeID
}

// City owns a fixed set of nodes and every person in them, and advances
// them one tick at a time. A City is not safe for concurrent use; callers
// serialize Step (see engine.Driver).
type City struct {
	nodes    []*Node
	byID     map[NodeID]*Node
	shared   [NumPlaceKinds]*Node // the single node of each non-House kind
	movement MovementMatrix
	src      Source

	persons []*Person
	moves   []Move
	counts  Counts
	tick    uint64
}

// New builds a city from a layout. Every node gets a health matrix from
// health; movement must carry a row for every kind present in the layout.
func New(specs []NodeSpec, health HealthParams, movement MovementMatrix, src Source) (*City, error) {
	if len(specs) == 0 {
		return nil, &ConfigError{Field: "nodes", Reason: "city needs at least one node"}
	}
	if src == nil {
		return nil, &ConfigError{Field: "source", Reason: "random source is required"}
	}
	if err := health.Validate(); err != nil {
		return nil, err
	}

	c := &City{
		byID:     make(map[NodeID]*Node, len(specs)),
		movement: movement,
		src:      src,
	}
	var present [NumPlaceKinds]bool
	for _, spec := range specs {
		if _, dup := c.byID[spec.ID]; dup {
			return nil, &ConfigError{Field: "nodes", Reason: fmt.Sprintf("duplicate node id %d", spec.ID)}
		}
		n, err := NewNode(spec.ID, spec.Kind, spec.Label, health)
		if err != nil {
			return nil, err
		}
		if n.Kind != House {
			if c.shared[n.Kind] != nil {
				return nil, &ConfigError{Field: "nodes", Reason: fmt.Sprintf("more than one %s node (%d and %d)", n.Kind, c.shared[n.Kind].ID, n.ID)}
			}
			c.shared[n.Kind] = n
		}
		present[n.Kind] = true
		c.nodes = append(c.nodes, n)
		c.byID[n.ID] = n
	}

	for k := PlaceKind(0); k < NumPlaceKinds; k++ {
		if !movement.HasRow(k) {
			if present[k] {
				return nil, &ConfigError{Field: "movement", Reason: fmt.Sprintf("no movement row for %s", k)}
			}
			continue
		}
		row := movement[k]
		if err := validateRow(row[:]); err != nil {
			return nil, &ConfigError{Field: "movement." + k.String(), Reason: err.Error()}
		}
		for dest := PlaceKind(1); dest < NumPlaceKinds; dest++ {
			if row[dest] > 0 && c.shared[dest] == nil {
				return nil, &ConfigError{Field: "movement." + k.String(), Reason: fmt.Sprintf("moves to %s but the city has no %s node", dest, dest)}
			}
		}
	}
	return c, nil
}

// GeneratePersons allocates total persons living in the given house and
// places them there. The first infected of them start Infected.
func (c *City) GeneratePersons(home NodeID, total, infected int) error {
	n, ok := c.byID[home]
	if !ok {
		return &ConfigError{Field: "home", Reason: fmt.Sprintf("unknown node %d", home)}
	}
	if n.Kind != House {
		return &ConfigError{Field: "home", Reason: fmt.Sprintf("node %d is a %s, not a House", home, n.Kind)}
	}
	if total < 0 || infected < 0 {
		return &ConfigError{Field: "population", Reason: fmt.Sprintf("counts must be non-negative (total=%d, infected=%d)", total, infected)}
	}
	if infected > total {
		return &ConfigError{Field: "population", Reason: fmt.Sprintf("infected %d exceeds total %d", infected, total)}
	}

	for i := 0; i < total; i++ {
		p := &Person{
			ID:     PersonID(len(c.persons) + 1),
			Health: Susceptible,
			Home:   home,
		}
		if i < infected {
			p.Health = Infected
		}
		c.persons = append(c.persons, p)
		n.add(p)
	}
	c.recomputeCounts()
	return nil
}

// Step runs one tick: health update, movement, then aggregation. The
// returned error is always an *InvariantViolation and means the engine is
// broken; it never reflects randomness or input.
func (c *City) Step() error {
	c.updateNodeStates()
	moveErr := c.move()
	c.recomputeCounts()
	c.tick++

	if moveErr != nil {
		slog.Error("movement failed", "tick", c.tick, "error", moveErr)
		return moveErr
	}
	if err := c.CheckInvariants(); err != nil {
		slog.Error("city invariant violated", "tick", c.tick, "error", err)
		return err
	}
	slog.Debug("tick complete",
		"tick", c.tick,
		"susceptible", c.counts.Susceptible,
		"infected", c.counts.Infected,
		"recovered", c.counts.Recovered,
		"dead", c.counts.Dead,
		"moves", len(c.moves),
	)
	return nil
}

func (c *City) updateNodeStates() {
	for _, n := range c.nodes {
		n.RecalibrateHealthMatrix()
		n.AdvanceHealthStates(c.src)
	}
}

// move decides every member's destination before touching any membership,
// then applies the decisions in order.
func (c *City) move() error {
	c.moves = c.moves[:0]
	for _, n := range c.nodes {
		row := c.movement[n.Kind]
		for _, p := range n.members {
			draw := c.src.Float64()
			k, ok := pick(row[:], draw)
			if !ok {
				slog.Warn("movement draw fell through transition row",
					"node", n.Label, "person", p.ID, "draw", draw)
			}
			dest := c.destination(p, PlaceKind(k))
			if dest.ID != n.ID {
				c.moves = append(c.moves, Move{Person: p, From: n.ID, To: dest.ID})
			}
		}
	}

	for _, m := range c.moves {
		from, to := c.byID[m.From], c.byID[m.To]
		if !from.remove(m.Person) {
			return &InvariantViolation{Tick: c.tick + 1, Reason: fmt.Sprintf("person %d not found in node %d", m.Person.ID, m.From)}
		}
		to.add(m.Person)
	}
	return nil
}

// destination resolves a drawn place kind to a node. The dead stay home
// whatever they draw.
func (c *City) destination(p *Person, kind PlaceKind) *Node {
	if kind == House || p.Health == Dead {
		return c.byID[p.Home]
	}
	return c.shared[kind]
}

func (c *City) recomputeCounts() {
	var total Counts
	for _, n := range c.nodes {
		n.RecomputeCounts()
		total = total.Plus(n.counts)
	}
	c.counts = total
}

// CheckInvariants verifies population conservation, membership consistency,
// dead persons at home and well-formed health matrices.
func (c *City) CheckInvariants() error {
	members := 0
	for _, n := range c.nodes {
		members += n.Len()
		if n.counts.Total != n.Len() {
			return &InvariantViolation{Tick: c.tick, Reason: fmt.Sprintf("node %d counts %d persons but holds %d", n.ID, n.counts.Total, n.Len())}
		}
		if err := n.matrix.Validate(); err != nil {
			return &InvariantViolation{Tick: c.tick, Reason: fmt.Sprintf("node %d: %v", n.ID, err)}
		}
	}
	if members != len(c.persons) || c.counts.Total != len(c.persons) {
		return &InvariantViolation{Tick: c.tick, Reason: fmt.Sprintf("population %d, node members %d, city total %d", len(c.persons), members, c.counts.Total)}
	}
	for _, p := range c.persons {
		at, ok := c.byID[p.At]
		if !ok || !at.Contains(p) {
			return &InvariantViolation{Tick: c.tick, Reason: fmt.Sprintf("person %d is not a member of node %d", p.ID, p.At)}
		}
		if p.Health == Dead && p.At != p.Home {
			return &InvariantViolation{Tick: c.tick, Reason: fmt.Sprintf("dead person %d is at node %d, home is %d", p.ID, p.At, p.Home)}
		}
	}
	return nil
}

// Tick returns the number of completed ticks.
func (c *City) Tick() uint64 { return c.tick }

// Counts returns the city-wide counters.
func (c *City) Counts() Counts { return c.counts }

// Nodes returns the nodes in layout order.
func (c *City) Nodes() []*Node {
	out := make([]*Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Node returns the node with the given id.
func (c *City) Node(id NodeID) (*Node, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// Houses returns the House nodes in layout order.
func (c *City) Houses() []*Node {
	var out []*Node
	for _, n := range c.nodes {
		if n.Kind == House {
			out = append(out, n)
		}
	}
	return out
}

// Persons returns every person the city owns, in allocation order.
func (c *City) Persons() []*Person {
	out := make([]*Person, len(c.persons))
	copy(out, c.persons)
	return out
}

// Moves returns the relocations applied by the last tick.
func (c *City) Moves() []Move {
	out := make([]Move, len(c.moves))
	copy(out, c.moves)
	return out
}

// Snapshot copies the current counters into a read-only view.
func (c *City) Snapshot() Snapshot {
	s := Snapshot{
		Tick:   c.tick,
		Counts: c.counts,
		Nodes:  make([]NodeSnapshot, 0, len(c.nodes)),
	}
	for _, n := range c.nodes {
		s.Nodes = append(s.Nodes, NodeSnapshot{ID: n.ID, Kind: n.Kind, Label: n.Label, Counts: n.counts})
	}
	return s
}

// String lists every node with the health state of each member.
func (c *City) String() string {
	var b strings.Builder
	for _, n := range c.nodes {
		b.WriteString(n.Kind.String())
		b.WriteString(" : ")
		for _, p := range n.members {
			b.WriteString(p.Health.String())
			b.WriteByte('\t')
		}
		b.WriteByte('\n')
	}
	return b.String()
}
