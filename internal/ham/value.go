// Package ham implements the Hypothetical Amnesia Machine: the field-level
// last-writer-wins algebra used to merge two replicas of the same node
// without coordination.
//
// Example:
//
//	cur := ham.Metadata{NodeID: "users/alice", State: map[string]float64{"age": 1000}}
//	inc := ham.Metadata{NodeID: "users/alice", State: map[string]float64{"age": 1001}}
//	winner, incWon := ham.MergeField(ham.Number(30), ham.Number(31), 1000, 1001, cur, inc)
//
// Two independent replicas applying MergeField (or MergeNode) to the same
// inputs always land on the same winner, regardless of which side ran the
// merge or in what order concurrent writes arrived.
package ham

import "fmt"

// Kind is the closed set of value types that may be stored at rest.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindLink
)

// rank orders Kind for the tie-break comparator: Null < Bool < Number <
// String < Link. Spec.md's comparator also ranks List/Map/Other above
// String, but no stored Value is ever a List or Map (invariant §3-4), so
// those ranks are unreachable and omitted.
func (k Kind) rank() int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindNumber:
		return 2
	case KindString:
		return 3
	case KindLink:
		return 4
	default:
		return 5
	}
}

// Value is the tagged union stored per field: Null | Bool | Number | String | Link.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	String string
	Link   string // node_id the Link points at
}

// Null returns the Null value.
func Null() Value { return Value{Kind: KindNull} }

// BoolValue wraps a boolean value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number wraps a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// String wraps a string value.
func String(s string) Value { return Value{Kind: KindString, String: s} }

// LinkTo returns a Link value pointing at nodeID.
func LinkTo(nodeID string) Value { return Value{Kind: KindLink, Link: nodeID} }

// IsNull reports whether v is the Null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports whether two values carry the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Number == o.Number
	case KindString:
		return v.String == o.String
	case KindLink:
		return v.Link == o.Link
	default:
		return true
	}
}

// stringForm renders v the way the "else by string form" tie-break rule
// needs — a stable, total string representation of the value's payload.
func (v Value) stringForm() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindString:
		return v.String
	case KindLink:
		return v.Link
	default:
		return ""
	}
}

// compareValue implements spec.md §4.1(c): rank by type, then by natural
// order for same-typed primitives, else by string form. Returns <0 if v
// sorts before o, >0 if after, 0 if tied (which resolves to "current wins"
// by the caller, per the stability rule).
func compareValue(v, o Value) int {
	if rv, ro := v.Kind.rank(), o.Kind.rank(); rv != ro {
		return rv - ro
	}
	switch v.Kind {
	case KindBool:
		if v.Bool == o.Bool {
			return 0
		}
		if !v.Bool {
			return -1
		}
		return 1
	case KindNumber:
		switch {
		case v.Number < o.Number:
			return -1
		case v.Number > o.Number:
			return 1
		default:
			return 0
		}
	case KindString, KindLink:
		a, b := v.stringForm(), o.stringForm()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	default: // Null, or anything unrecognized: always tied
		return 0
	}
}
