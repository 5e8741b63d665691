package city

import (
	"fmt"
	"log/slog"
)

// Node is a place holding persons. It owns the health matrix that applies to
// its members and the counters derived from them. A node never allocates
// persons; it only tracks which of the city's persons are inside it.
type Node struct {
	ID    NodeID
	Kind  PlaceKind
	Label string

	params  HealthParams
	matrix  HealthMatrix
	members []*Person
	index   map[PersonID]int
	counts  Counts
}

// NewNode creates an empty node with a health matrix built from params.
func NewNode(id NodeID, kind PlaceKind, label string, params HealthParams) (*Node, error) {
	if int(kind) >= NumPlaceKinds {
		return nil, &ConfigError{Field: "node.kind", Reason: fmt.Sprintf("node %d has unknown kind %d", id, kind)}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if label == "" {
		label = fmt.Sprintf("%s_%d", kind, id)
	}
	return &Node{
		ID:     id,
		Kind:   kind,
		Label:  label,
		params: params,
		matrix: newHealthMatrix(params),
		index:  make(map[PersonID]int),
	}, nil
}

// Len returns the number of members currently in the node.
func (n *Node) Len() int {
	return len(n.members)
}

// Members returns a copy of the membership list.
func (n *Node) Members() []*Person {
	out := make([]*Person, len(n.members))
	copy(out, n.members)
	return out
}

// Matrix returns a copy of the current health matrix.
func (n *Node) Matrix() HealthMatrix {
	return n.matrix
}

// Counts returns the counters from the last RecomputeCounts.
func (n *Node) Counts() Counts {
	return n.counts
}

// Contains reports whether p is a member.
func (n *Node) Contains(p *Person) bool {
	_, ok := n.index[p.ID]
	return ok
}

func (n *Node) add(p *Person) {
	n.index[p.ID] = len(n.members)
	n.members = append(n.members, p)
	p.At = n.ID
}

// remove swaps the last member into p's slot. Order stays deterministic for
// a given sequence of operations.
func (n *Node) remove(p *Person) bool {
	i, ok := n.index[p.ID]
	if !ok {
		return false
	}
	last := len(n.members) - 1
	if i != last {
		moved := n.members[last]
		n.members[i] = moved
		n.index[moved.ID] = i
	}
	n.members[last] = nil
	n.members = n.members[:last]
	delete(n.index, p.ID)
	return true
}

// RecalibrateHealthMatrix sets the Susceptible row from occupancy: any
// infected member exposes everyone else at the outbreak rate, otherwise
// susceptible members stay susceptible.
func (n *Node) RecalibrateHealthMatrix() {
	exposed := false
	for _, p := range n.members {
		if p.Health == Infected {
			exposed = true
			break
		}
	}
	if exposed {
		n.matrix[Susceptible] = HealthRow{1 - n.params.OutbreakRate, n.params.OutbreakRate, 0, 0}
	} else {
		n.matrix[Susceptible] = HealthRow{1, 0, 0, 0}
	}
}

// AdvanceHealthStates draws once per member and moves each member to the
// next state selected from its current row.
func (n *Node) AdvanceHealthStates(src Source) {
	for _, p := range n.members {
		draw := src.Float64()
		row := n.matrix[p.Health]
		next, ok := pick(row[:], draw)
		if !ok {
			slog.Warn("health draw fell through transition row",
				"node", n.Label, "person", p.ID, "state", p.Health, "draw", draw)
		}
		p.Health = HealthState(next)
	}
}

// RecomputeCounts rebuilds the counters from the current members.
func (n *Node) RecomputeCounts() {
	var c Counts
	for _, p := range n.members {
		c.add(p.Health)
	}
	n.counts = c
}
