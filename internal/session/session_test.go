package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hamsync/internal/wire"
)

func TestSession_HandshakeThenOnHi_PromotesToReady(t *testing.T) {
	var sent []wire.Frame
	s := New("1.2.0", "local", func(f wire.Frame) error {
		sent = append(sent, f)
		return nil
	})

	require.Equal(t, Connecting, s.State())
	require.NoError(t, s.Handshake("H1"))
	require.Equal(t, HandshakeSent, s.State())
	require.False(t, s.CanDispatch())

	err := s.OnHi("H1", wire.Hi{Version: "1.5.0", PeerID: "remote"}, nil)
	require.NoError(t, err)
	require.Equal(t, Ready, s.State())
	require.True(t, s.CanDispatch())
}

func TestSession_OnHi_PeerInitiated_RepliesAndPromotes(t *testing.T) {
	var sent []wire.Frame
	s := New("1.0.0", "local", func(f wire.Frame) error {
		sent = append(sent, f)
		return nil
	})

	err := s.OnHi("R1", wire.Hi{Version: "1.1.0", PeerID: "remote"}, nil)
	require.NoError(t, err)
	require.Equal(t, Ready, s.State())
	require.Len(t, sent, 2) // own handshake + the hi-ack reply
}

func TestSession_IncompatibleVersion_Fails(t *testing.T) {
	s := New("2.0.0", "local", func(wire.Frame) error { return nil })

	err := s.OnHi("H1", wire.Hi{Version: "1.0.0", PeerID: "remote"}, nil)
	require.Error(t, err)
	require.Equal(t, Failed, s.State())
	require.False(t, s.CanDispatch())
}

func TestSession_Ready_TimesOutWithoutHandshake(t *testing.T) {
	s := New("1.0.0", "local", func(wire.Frame) error { return nil })

	err := s.Ready(context.Background(), 10*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, Failed, s.State())
}

func TestSession_Ready_ResolvesOnPromotion(t *testing.T) {
	s := New("1.0.0", "local", func(wire.Frame) error { return nil })

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = s.OnHi("H1", wire.Hi{Version: "1.0.0", PeerID: "remote"}, nil)
	}()

	err := s.Ready(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, Ready, s.State())
}

func TestSession_Close_IsGracefulAndIdempotent(t *testing.T) {
	var sawBye bool
	s := New("1.0.0", "local", func(f wire.Frame) error {
		if f.Kind == wire.KindBye {
			sawBye = true
		}
		return nil
	})
	_ = s.OnHi("H1", wire.Hi{Version: "1.0.0", PeerID: "remote"}, nil)

	s.Close("bye1")
	require.True(t, sawBye)
	require.Equal(t, Closed, s.State())

	s.Close("bye2") // idempotent, must not panic or resend
	require.Equal(t, Closed, s.State())
}

func TestDefaultCompatible_MajorVersionMatch(t *testing.T) {
	require.True(t, DefaultCompatible("1.4.0", "1.0.0"))
	require.False(t, DefaultCompatible("2.0.0", "1.9.9"))
}
