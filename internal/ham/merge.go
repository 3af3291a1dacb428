package ham

// MergeField implements spec.md §4.1's per-field algorithm: compare the HAM
// timestamps, then break ties by machine_state, then by machine_id, then by
// the closed-set value comparator. Ties at every level keep the current
// value (stability).
//
// Returns the winning value and whether the incoming side won.
func MergeField(cur, inc Value, tCur, tInc float64, mCur, mInc Metadata) (Value, bool) {
	switch {
	case tInc > tCur:
		return inc, true
	case tCur > tInc:
		return cur, false
	}

	// Tied timestamps: machine_state, greater wins.
	if mInc.MachineState != mCur.MachineState {
		return pick(cur, inc, mInc.MachineState > mCur.MachineState)
	}

	// Tied machine_state: machine_id, lexicographically greater wins.
	if mInc.MachineID != mCur.MachineID {
		return pick(cur, inc, mInc.MachineID > mCur.MachineID)
	}

	// Tied everything else: deterministic value comparator. Ties return
	// current, per the stability rule.
	if compareValue(inc, cur) > 0 {
		return inc, true
	}
	return cur, false
}

func pick(cur, inc Value, incWins bool) (Value, bool) {
	if incWins {
		return inc, true
	}
	return cur, false
}

// Node is the minimal shape MergeNode needs: a field→value map plus its
// HAM metadata. internal/graph reads and writes nodes in this shape.
type Node struct {
	Fields map[string]Value
	Meta   Metadata
}

// MergeNode merges two whole nodes field-by-field per spec.md §4.1's
// "Merging two nodes" paragraph. The returned Metadata's per-field state is
// max(cur, inc) for every unioned field. Metadata keeps no per-field
// machine_state or machine_id, so the winner of a tie-break is not recorded
// per field. The node's own MachineState and MachineID are set to the
// caller-supplied nextState and machineID (graph.Store passes its clock's
// next value past max(cur, inc)).
func MergeNode(cur, inc Node, machineID string, nextState uint64) Node {
	fields := make(map[string]Value, len(cur.Fields)+len(inc.Fields))
	state := make(map[string]float64, len(cur.Meta.State)+len(inc.Meta.State))

	seen := make(map[string]bool, len(cur.Fields)+len(inc.Fields))
	for f := range cur.Fields {
		seen[f] = true
	}
	for f := range inc.Fields {
		seen[f] = true
	}

	for field := range seen {
		cv, cok := cur.Fields[field]
		iv, iok := inc.Fields[field]
		tCur := cur.Meta.Timestamp(field)
		tInc := inc.Meta.Timestamp(field)

		switch {
		case !cok && !iok:
			continue
		case !cok:
			fields[field] = iv
			state[field] = tInc
		case !iok:
			fields[field] = cv
			state[field] = tCur
		default:
			winner, _ := MergeField(cv, iv, tCur, tInc, cur.Meta, inc.Meta)
			fields[field] = winner
			state[field] = max(tCur, tInc)
		}
	}

	meta := Metadata{
		NodeID:       cur.Meta.NodeID,
		State:        state,
		MachineState: nextState,
		MachineID:    machineID,
	}
	if meta.NodeID == "" {
		meta.NodeID = inc.Meta.NodeID
	}

	return Node{Fields: fields, Meta: meta}
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
