package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func adapters(t *testing.T) map[string]Adapter {
	t.Helper()
	sq, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	require.NoError(t, sq.Initialize(context.Background()))

	mem := NewMemory()
	require.NoError(t, mem.Initialize(context.Background()))

	return map[string]Adapter{"memory": mem, "sqlite": sq}
}

func TestAdapters_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			node := StoredNode{Key: "users/alice", Data: []byte(`{"age":30}`), CreatedAt: 1, UpdatedAt: 2}
			require.NoError(t, a.Put(ctx, node.Key, node))

			got, ok, err := a.Get(ctx, node.Key)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, node.Data, got.Data)

			exists, err := a.Exists(ctx, node.Key)
			require.NoError(t, err)
			require.True(t, exists)

			_, ok, err = a.Get(ctx, "users/bob")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestAdapters_DeleteAndKeys(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Put(ctx, "chat/r1", StoredNode{Key: "chat/r1"}))
			require.NoError(t, a.Put(ctx, "chat/r1/messages", StoredNode{Key: "chat/r1/messages"}))
			require.NoError(t, a.Put(ctx, "users/alice", StoredNode{Key: "users/alice"}))

			keys, err := a.Keys(ctx, "chat/")
			require.NoError(t, err)
			require.Len(t, keys, 2)

			require.NoError(t, a.Delete(ctx, "chat/r1"))
			exists, err := a.Exists(ctx, "chat/r1")
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestAdapters_Clear(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, a.Put(ctx, "a", StoredNode{Key: "a"}))
			require.NoError(t, a.Clear(ctx))
			keys, err := a.Keys(ctx, "")
			require.NoError(t, err)
			require.Empty(t, keys)
		})
	}
}

func TestSQLite_Vacuum(t *testing.T) {
	sq, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer sq.Close()
	require.NoError(t, sq.Initialize(context.Background()))
	require.NoError(t, sq.Vacuum(context.Background()))
}
