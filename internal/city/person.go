package city

// PersonID identifies a person within a City.
type PersonID uint64

// NodeID identifies a node within a City.
type NodeID uint32

// Person is one inhabitant. Home always refers to a House node; At is kept
// in sync by node membership and names the node the person is in now.
type Person struct {
	ID     PersonID    `json:"id"`
	Health HealthState `json:"health"`
	Home   NodeID      `json:"home"`
	At     NodeID      `json:"at"`
}
