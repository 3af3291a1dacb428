package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hamsync/internal/relay/transport"
	"hamsync/internal/wire"
)

func TestRelay_SendAndReceiveOverLoopback(t *testing.T) {
	a, b := transport.NewLoopbackPair()
	ra, rb := New(a), New(b)

	ctx := context.Background()
	require.NoError(t, ra.Connect(ctx))
	require.NoError(t, rb.Connect(ctx))

	require.NoError(t, ra.Send(ctx, wire.NewGet("Q1", wire.BuildQuery("n", nil))))

	select {
	case f := <-rb.Incoming():
		require.Equal(t, wire.KindGet, f.Kind)
	case <-time.After(time.Second):
		t.Fatal("never received frame")
	}
}
