package wire

// Query is the decoded form of a get frame's query_shape (spec.md §4.4):
// either {"#": node_id} or nested {"#": node_id, ".": query_shape} for
// path traversal.
type Query struct {
	NodeID string
	Path   []string
}

// BuildQuery turns (root, path) into the nested query_shape map that
// NewGet expects.
func BuildQuery(root string, path []string) map[string]any {
	shape := map[string]any{"#": root}
	cur := shape
	for _, seg := range path {
		next := map[string]any{"#": seg}
		cur["."] = next
		cur = next
	}
	return shape
}

// ParseQuery flattens a (possibly nested) query_shape back into a root
// node id and a path of segments.
func ParseQuery(shape map[string]any) (Query, error) {
	root, ok := shape["#"].(string)
	if !ok {
		return Query{}, &ErrMalformed{Reason: "query shape missing \"#\""}
	}
	q := Query{NodeID: root}

	cur := shape
	for {
		next, ok := cur["."]
		if !ok {
			break
		}
		nextShape, ok := next.(map[string]any)
		if !ok {
			return Query{}, &ErrMalformed{Reason: "query shape \".\" must be an object"}
		}
		seg, ok := nextShape["#"].(string)
		if !ok {
			return Query{}, &ErrMalformed{Reason: "nested query shape missing \"#\""}
		}
		q.Path = append(q.Path, seg)
		cur = nextShape
	}

	return q, nil
}
