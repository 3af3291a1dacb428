package ham

import "maps"

// Metadata is the per-node HAM envelope (spec.md §3):
//
//	node_id       — equals the node's address
//	state         — field → HAM timestamp
//	machine_state — monotone counter local to the producing replica
//	machine_id    — stable random identifier of the producing replica
type Metadata struct {
	NodeID       string
	State        map[string]float64
	MachineState uint64
	MachineID    string
}

// NewMetadata returns an empty Metadata for nodeID, owned by machineID.
func NewMetadata(nodeID, machineID string) Metadata {
	return Metadata{
		NodeID:    nodeID,
		State:     make(map[string]float64),
		MachineID: machineID,
	}
}

// Timestamp returns the recorded HAM time for field, or 0 if the field has
// no entry (invariant §3-1: absent entry means the field is absent).
func (m Metadata) Timestamp(field string) float64 {
	if m.State == nil {
		return 0
	}
	return m.State[field]
}

// Clone returns a deep copy of m so callers can mutate the result without
// aliasing the original's State map.
func (m Metadata) Clone() Metadata {
	c := Metadata{NodeID: m.NodeID, MachineState: m.MachineState, MachineID: m.MachineID}
	c.State = make(map[string]float64, len(m.State))
	maps.Copy(c.State, m.State)
	return c
}

// Fields returns the set of fields with a recorded timestamp.
func (m Metadata) Fields() []string {
	out := make([]string, 0, len(m.State))
	for f := range m.State {
		out = append(out, f)
	}
	return out
}
