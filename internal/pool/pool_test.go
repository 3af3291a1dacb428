package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hamsync/internal/relay"
	"hamsync/internal/relay/transport"
	"hamsync/internal/session"
	"hamsync/internal/wire"
)

// loopbackDialer builds a Dialer that pairs each dialed URL with an
// in-process Loopback peer, auto-completing the handshake so the pool
// sees it reach Ready quickly.
func loopbackDialer(t *testing.T) (Dialer, map[string]*transport.Loopback) {
	peerSides := make(map[string]*transport.Loopback)
	dialer := func(ctx context.Context, url string) (*relay.Relay, *session.Session, error) {
		a, b := transport.NewLoopbackPair()
		peerSides[url] = b

		go func() {
			require.NoError(t, b.Connect(context.Background()))
			for range b.Incoming() {
			}
		}()

		r := relay.New(a)
		s := session.New("1.0.0", "local", func(f wire.Frame) error {
			return r.Send(context.Background(), f)
		})
		return r, s, nil
	}
	return dialer, peerSides
}

func TestPool_StartOpensMinConnections(t *testing.T) {
	dial, _ := loopbackDialer(t)
	p := New(dial, HealthWeighted, 5, 1, false)

	require.NoError(t, p.Start(context.Background(), []string{"peerA", "peerB", "peerC"}))

	require.Eventually(t, func() bool { return p.ReadyCount() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestPool_AddPeer_RespectsMaxConnections(t *testing.T) {
	dial, _ := loopbackDialer(t)
	p := New(dial, RoundRobin, 1, 1, false)

	require.NoError(t, p.AddPeer(context.Background(), "peerA"))
	err := p.AddPeer(context.Background(), "peerB")
	require.Error(t, err)
}

func TestPool_Send_RoundRobin_AlternatesPeers(t *testing.T) {
	dial, _ := loopbackDialer(t)
	p := New(dial, RoundRobin, 5, 1, false)

	require.NoError(t, p.AddPeer(context.Background(), "peerA"))
	require.NoError(t, p.AddPeer(context.Background(), "peerB"))
	require.Eventually(t, func() bool { return p.ReadyCount() == 2 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Send(context.Background(), wire.NewGet("m", wire.BuildQuery("n", nil))))
	}

	first, err := p.selectPeer(nil)
	require.NoError(t, err)
	second, err := p.selectPeer(nil)
	require.NoError(t, err)
	require.NotEqual(t, first.url, second.url)
}

func TestPool_RemovePeer(t *testing.T) {
	dial, _ := loopbackDialer(t)
	p := New(dial, HealthWeighted, 5, 1, false)

	require.NoError(t, p.AddPeer(context.Background(), "peerA"))
	require.Eventually(t, func() bool { return p.ReadyCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.RemovePeer(context.Background(), "peerA"))
	require.Eventually(t, func() bool { return p.ReadyCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestPool_Close_IsIdempotent(t *testing.T) {
	dial, _ := loopbackDialer(t)
	p := New(dial, HealthWeighted, 5, 1, false)
	require.NoError(t, p.AddPeer(context.Background(), "peerA"))

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
}

func TestPool_Send_NoHealthyPeer_Errors(t *testing.T) {
	dial, _ := loopbackDialer(t)
	p := New(dial, HealthWeighted, 5, 1, false)

	err := p.Send(context.Background(), wire.NewGet("m", wire.BuildQuery("n", nil)))
	require.ErrorIs(t, err, ErrNoHealthyPeer)
}

func TestPool_OnHandshakeHealth_UpdatesScore(t *testing.T) {
	dial, _ := loopbackDialer(t)
	p := New(dial, HealthWeighted, 5, 1, false)
	require.NoError(t, p.AddPeer(context.Background(), "peerA"))
	require.Eventually(t, func() bool { return p.ReadyCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		p.OnHandshakeHealth("peerA", 500*time.Millisecond, false)
	}

	require.Eventually(t, func() bool { return p.ReadyCount() == 0 }, time.Second, 5*time.Millisecond)
}
