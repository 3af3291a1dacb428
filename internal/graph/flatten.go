package graph

import (
	"context"
	"time"

	"hamsync/internal/ham"
	"hamsync/internal/randtoken"
)

// Flattener implements spec.md §4.3: splitting nested writes into linked
// nodes, resolving links back into nested values on read, and grow-only
// set writes.
type Flattener struct {
	store *Store
}

// NewFlattener wires a Flattener to store.
func NewFlattener(store *Store) *Flattener {
	return &Flattener{store: store}
}

// Tree is a nested write: keys map to primitives (nil, bool, float64,
// string) or to nested Trees. No stored Value is ever a nested mapping
// (invariant §3-4) — Write is precisely the operation that removes nesting
// before anything touches the store.
type Tree map[string]any

// Write flattens tree under baseID, writing one node per (sub)object. The
// root node's fields are committed last so that the link graph a reader
// might race to resolve already has its targets in place.
func (f *Flattener) Write(ctx context.Context, baseID string, tree Tree, now time.Time) (ham.Node, error) {
	leaves := make(map[string]ham.Value, len(tree))

	for field, raw := range tree {
		switch v := raw.(type) {
		case Tree:
			childID := baseID + "/" + field
			if _, err := f.Write(ctx, childID, v, now); err != nil {
				return ham.Node{}, err
			}
			leaves[field] = ham.LinkTo(childID)
		case map[string]any:
			childID := baseID + "/" + field
			if _, err := f.Write(ctx, childID, Tree(v), now); err != nil {
				return ham.Node{}, err
			}
			leaves[field] = ham.LinkTo(childID)
		default:
			val, err := scalarValue(raw)
			if err != nil {
				return ham.Node{}, err
			}
			leaves[field] = val
		}
	}

	return f.store.Put(ctx, baseID, leaves, now)
}

// scalarValue converts a leaf Go value into a ham.Value, rejecting slices
// and other unsupported shapes outright rather than silently dropping them.
func scalarValue(raw any) (ham.Value, error) {
	switch v := raw.(type) {
	case nil:
		return ham.Null(), nil
	case bool:
		return ham.BoolValue(v), nil
	case float64:
		return ham.Number(v), nil
	case int:
		return ham.Number(float64(v)), nil
	case string:
		return ham.String(v), nil
	case ham.Value:
		return v, nil
	default:
		return ham.Value{}, &ham.ErrMalformed{Reason: "unsupported leaf value type in write tree"}
	}
}

// Resolved is the read-side result of Resolve: a field→value map where Link
// values have been replaced by their resolved subtree (a nested Resolved)
// unless a cycle, depth cap, or missing child stopped the recursion, in
// which case the raw ham.Value Link is left in place (spec.md §4.3 points
// 2-4).
type Resolved map[string]any

// DefaultMaxDepth is spec.md §4.3's resolve default.
const DefaultMaxDepth = 5

// Resolve loads nodeID and recursively resolves Link fields up to maxDepth,
// guarding against cycles with a visited set keyed by node_id.
func (f *Flattener) Resolve(ctx context.Context, nodeID string, maxDepth int) (Resolved, ham.Metadata, error) {
	visited := make(map[string]bool)
	return f.resolve(ctx, nodeID, maxDepth, visited)
}

func (f *Flattener) resolve(ctx context.Context, nodeID string, depth int, visited map[string]bool) (Resolved, ham.Metadata, error) {
	node, err := f.store.Read(ctx, nodeID)
	if err != nil {
		return nil, ham.Metadata{}, err
	}
	if node == nil {
		return nil, ham.Metadata{}, nil
	}

	visited[nodeID] = true
	out := make(Resolved, len(node.Fields))

	for field, v := range node.Fields {
		if v.Kind != ham.KindLink {
			out[field] = v
			continue
		}
		if depth <= 0 || visited[v.Link] {
			out[field] = v // cap or cycle: leave the Link unchanged
			continue
		}
		child, _, err := f.resolve(ctx, v.Link, depth-1, visited)
		if err != nil || child == nil {
			out[field] = v // missing/erroring child: substitute the Link
			continue
		}
		out[field] = child
	}

	return out, node.Meta, nil
}

// Traverse follows root/seg1/seg2/... one segment at a time, consulting the
// store at every hop so intermediate nodes can be served from local state
// before any network fan-out (spec.md §4.3 "Traversal of chained paths").
// It returns the node_id holding the final segment, that segment's raw
// Value (a Link is not resolved; maxDepth is not used) and found=true, or
// ("", zero Value, false, nil) if any hop along the way is absent.
func (f *Flattener) Traverse(ctx context.Context, root string, path []string, maxDepth int) (string, ham.Value, bool, error) {
	nodeID := root
	var cur ham.Value
	found := false

	for i, seg := range path {
		node, err := f.store.Read(ctx, nodeID)
		if err != nil {
			return "", ham.Value{}, false, err
		}
		if node == nil {
			return "", ham.Value{}, false, nil
		}
		v, ok := node.Fields[seg]
		if !ok {
			return "", ham.Value{}, false, nil
		}
		cur, found = v, true
		if i == len(path)-1 {
			break
		}
		if v.Kind != ham.KindLink {
			// A non-link value in the middle of a path has no children.
			return "", ham.Value{}, false, nil
		}
		nodeID = v.Link
	}

	return nodeID, cur, found, nil
}

// Set performs a grow-only set write (spec.md §4.3 "Set-style writes"): it
// mints a fresh child_id under parentID, writes value there, and links it
// into parentID at a random field name. Concurrent Set calls never
// collide, so no coordination between writers is required.
func (f *Flattener) Set(ctx context.Context, parentID string, value Tree, now time.Time) (string, error) {
	token, err := randtoken.Generate(12)
	if err != nil {
		return "", err
	}
	childID := parentID + "/" + token

	if _, err := f.Write(ctx, childID, value, now); err != nil {
		return "", err
	}
	if _, err := f.store.Put(ctx, parentID, map[string]ham.Value{token: ham.LinkTo(childID)}, now); err != nil {
		return "", err
	}
	return childID, nil
}
