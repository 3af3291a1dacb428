package hamsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"hamsync/internal/graph"
	"hamsync/internal/ham"
	"hamsync/internal/query"
)

func TestChain_Put_WritesAtJoinedPath(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Get("users").Get("carol").Put(ctx, graph.Tree{"name": "Carol"})
	require.NoError(t, err)

	res := e.Get("users").Get("carol").Once(ctx, query.Options{Network: false})
	require.NoError(t, res.Err)
	require.Equal(t, ham.String("Carol"), res.Data["name"])
}

func TestChain_Set_CreatesDistinctChildPerCall(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	idA, err := e.Get("messages").Set(ctx, graph.Tree{"text": "hi"})
	require.NoError(t, err)
	idB, err := e.Get("messages").Set(ctx, graph.Tree{"text": "there"})
	require.NoError(t, err)

	require.NotEqual(t, idA, idB)
}

func TestChain_Filter_DropsNonMatchingEntries(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.PutRoot(ctx, "scores", graph.Tree{
		"alice": float64(90),
		"bob":   float64(40),
	})
	require.NoError(t, err)

	res := e.Get("scores").
		Filter(func(v any, k string) bool {
			val, ok := v.(ham.Value)
			return ok && val.Number >= 50
		}).
		Once(ctx, query.Options{Network: false})

	require.NoError(t, res.Err)
	_, hasAlice := res.Data["alice"]
	_, hasBob := res.Data["bob"]
	require.True(t, hasAlice)
	require.False(t, hasBob)
}

func TestChain_Map_TransformsEntries(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.PutRoot(ctx, "counters", graph.Tree{"hits": float64(1)})
	require.NoError(t, err)

	res := e.Get("counters").
		Map(func(v any, k string) any {
			val := v.(ham.Value)
			return ham.Number(val.Number + 1)
		}).
		Once(ctx, query.Options{Network: false})

	require.NoError(t, res.Err)
	require.Equal(t, ham.Number(2), res.Data["hits"])
}

func TestChain_AllEntriesFiltered_DropsMetadataEntirely(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.PutRoot(ctx, "empty-after-filter", graph.Tree{"x": float64(1)})
	require.NoError(t, err)

	res := e.Get("empty-after-filter").
		Filter(func(v any, k string) bool { return false }).
		Once(ctx, query.Options{Network: false})

	require.NoError(t, res.Err)
	require.Nil(t, res.Data)
	require.Nil(t, res.Meta.State)
}
