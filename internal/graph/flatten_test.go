package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hamsync/internal/ham"
)

func newFlattener(t *testing.T) (*Store, *Flattener) {
	t.Helper()
	s := newStore(t)
	return s, NewFlattener(s)
}

// S4: nested flatten/unflatten.
func TestFlattener_WriteThenResolve(t *testing.T) {
	ctx := context.Background()
	_, f := newFlattener(t)

	tree := Tree{
		"messages": Tree{
			"latest": Tree{
				"text": "hi",
			},
		},
	}
	_, err := f.Write(ctx, "chat/r1", tree, time.Now())
	require.NoError(t, err)

	resolved, _, err := f.Resolve(ctx, "chat/r1", DefaultMaxDepth)
	require.NoError(t, err)

	messages, ok := resolved["messages"].(Resolved)
	require.True(t, ok)
	latest, ok := messages["latest"].(Resolved)
	require.True(t, ok)
	require.Equal(t, ham.String("hi"), latest["text"])
}

func TestFlattener_DanglingLink_ReturnsLinkNotError(t *testing.T) {
	ctx := context.Background()
	s, f := newFlattener(t)

	_, err := s.Put(ctx, "a", map[string]ham.Value{"b": ham.LinkTo("does/not/exist")}, time.Now())
	require.NoError(t, err)

	resolved, _, err := f.Resolve(ctx, "a", DefaultMaxDepth)
	require.NoError(t, err)
	require.Equal(t, ham.LinkTo("does/not/exist"), resolved["b"])
}

func TestFlattener_SelfReferentialLink_TerminatesAtFirstRevisit(t *testing.T) {
	ctx := context.Background()
	s, f := newFlattener(t)

	_, err := s.Put(ctx, "loop", map[string]ham.Value{"self": ham.LinkTo("loop")}, time.Now())
	require.NoError(t, err)

	resolved, _, err := f.Resolve(ctx, "loop", DefaultMaxDepth)
	require.NoError(t, err)
	require.Equal(t, ham.LinkTo("loop"), resolved["self"])
}

func TestFlattener_DepthCap_ReturnsLastLink(t *testing.T) {
	ctx := context.Background()
	s, f := newFlattener(t)

	// a -> b -> c (depth 1 cap stops after the first hop)
	_, err := s.Put(ctx, "c", map[string]ham.Value{"v": ham.Number(1)}, time.Now())
	require.NoError(t, err)
	_, err = s.Put(ctx, "b", map[string]ham.Value{"next": ham.LinkTo("c")}, time.Now())
	require.NoError(t, err)
	_, err = s.Put(ctx, "a", map[string]ham.Value{"next": ham.LinkTo("b")}, time.Now())
	require.NoError(t, err)

	resolved, _, err := f.Resolve(ctx, "a", 1)
	require.NoError(t, err)

	next, ok := resolved["next"].(Resolved)
	require.True(t, ok)
	require.Equal(t, ham.LinkTo("c"), next["next"])
}

func TestFlattener_Traverse_SegmentBySegment(t *testing.T) {
	ctx := context.Background()
	_, f := newFlattener(t)

	_, err := f.Write(ctx, "chat/r1", Tree{"messages": Tree{"latest": Tree{"text": "hi"}}}, time.Now())
	require.NoError(t, err)

	nodeID, v, found, err := f.Traverse(ctx, "chat/r1", []string{"messages", "latest", "text"}, DefaultMaxDepth)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, ham.String("hi"), v)
	require.Equal(t, "chat/r1/messages/latest", nodeID)
}

func TestFlattener_Traverse_AbsentHopReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	_, f := newFlattener(t)

	_, _, found, err := f.Traverse(ctx, "nowhere", []string{"a", "b"}, DefaultMaxDepth)
	require.NoError(t, err)
	require.False(t, found)
}

// flatten(unflatten(x)) == x for tree-shaped inputs without cycles.
func TestFlattener_RoundTrip_TreeShaped(t *testing.T) {
	ctx := context.Background()
	_, f := newFlattener(t)

	original := Tree{
		"profile": Tree{
			"name": "Bob",
			"age":  float64(42),
		},
		"active": true,
	}
	_, err := f.Write(ctx, "users/bob", original, time.Now())
	require.NoError(t, err)

	resolved, _, err := f.Resolve(ctx, "users/bob", DefaultMaxDepth)
	require.NoError(t, err)

	profile := resolved["profile"].(Resolved)
	require.Equal(t, ham.String("Bob"), profile["name"])
	require.Equal(t, ham.Number(42), profile["age"])
	require.Equal(t, ham.BoolValue(true), resolved["active"])
}

func TestFlattener_Set_GrowOnly(t *testing.T) {
	ctx := context.Background()
	s, f := newFlattener(t)

	childA, err := f.Set(ctx, "room/members", Tree{"name": "alice"}, time.Now())
	require.NoError(t, err)
	childB, err := f.Set(ctx, "room/members", Tree{"name": "bob"}, time.Now())
	require.NoError(t, err)
	require.NotEqual(t, childA, childB)

	parent, err := s.Read(ctx, "room/members")
	require.NoError(t, err)
	require.Len(t, parent.Fields, 2)
}
