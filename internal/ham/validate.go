package ham

import "fmt"

// ErrMalformed is returned by Validate when a node or metadata violates
// spec.md §3's invariants. Merge itself is infallible (§4.1); callers must
// Validate before attempting a merge.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string { return fmt.Sprintf("ham: malformed node: %s", e.Reason) }

// Validate checks the §3 invariants that can be checked locally: every
// field has exactly one state entry, node_id is non-empty, and
// no field carries a value outside the closed Kind set.
func Validate(n Node) error {
	if n.Meta.NodeID == "" {
		return &ErrMalformed{Reason: "missing node_id"}
	}
	for field := range n.Fields {
		if _, ok := n.Meta.State[field]; !ok {
			return &ErrMalformed{Reason: fmt.Sprintf("field %q has no HAM timestamp", field)}
		}
	}
	for field, v := range n.Fields {
		switch v.Kind {
		case KindNull, KindBool, KindNumber, KindString, KindLink:
		default:
			return &ErrMalformed{Reason: fmt.Sprintf("field %q has unrecognized value kind", field)}
		}
	}
	return nil
}
