package city

import "fmt"

// NodeSpec describes one node of a city layout.
type NodeSpec struct {
	ID    NodeID    `json:"id" yaml:"id"`
	Kind  PlaceKind `json:"kind" yaml:"kind"`
	Label string    `json:"label" yaml:"label"`
}

// ReferenceLayout returns the toy city: five houses, a supermarket, a
// hospital and a bus line.
func ReferenceLayout() []NodeSpec {
	specs := make([]NodeSpec, 0, 8)
	for i := 1; i <= 5; i++ {
		specs = append(specs, NodeSpec{ID: NodeID(i), Kind: House, Label: fmt.Sprintf("house_%d", i)})
	}
	return append(specs,
		NodeSpec{ID: 6, Kind: Supermarket, Label: "store"},
		NodeSpec{ID: 7, Kind: Hospital, Label: "hospital"},
		NodeSpec{ID: 8, Kind: Transportation, Label: "bus"},
	)
}
