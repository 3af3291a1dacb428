// Package session implements the handshake and session lifecycle state
// machine (spec.md §4.9): Connecting -> HandshakeSent -> Ready -> Closing
// -> Closed, with a terminal Failed state reachable from Connecting,
// HandshakeSent or Closing (a Ready session does not move to Failed).
package session

import (
	"context"
	"sync"
	"time"

	"hamsync/internal/wire"
)

// State is one point in the session lifecycle.
type State int

const (
	Connecting State = iota
	HandshakeSent
	Ready
	Closing
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case HandshakeSent:
		return "HandshakeSent"
	case Ready:
		return "Ready"
	case Closing:
		return "Closing"
	case Closed:
		return "Closed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DefaultHandshakeDeadline is spec.md §4.9's hi/hi-ack timeout.
const DefaultHandshakeDeadline = 3 * time.Second

// Sender pushes an encoded frame out over a transport. Session does not
// know about transports directly; internal/relay supplies this.
type Sender func(wire.Frame) error

// Session drives one peer connection's handshake and lifecycle. It
// refuses to hand inbound user frames to its consumer before Ready
// (spec.md §5 "handshake atomicity"), and once Closed/Failed dispatches
// nothing further.
type Session struct {
	mu       sync.Mutex
	state    State
	failCause error
	version  string
	peerID   string
	remoteID string

	send Sender

	readyCh  chan struct{}
	readyOne sync.Once
}

// New builds a Session in Connecting state for the local identity
// (version, peerID), using send to dispatch outbound frames.
func New(version, peerID string, send Sender) *Session {
	return &Session{
		state:   Connecting,
		version: version,
		peerID:  peerID,
		send:    send,
		readyCh: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready blocks until the session reaches Ready or the context is done or
// the handshake deadline elapses, whichever comes first.
func (s *Session) Ready(ctx context.Context, deadline time.Duration) error {
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.fail(ErrHandshakeTimeout{})
		return ErrHandshakeTimeout{}
	}
}

// ErrHandshakeTimeout is the Failed cause when hi/hi-ack doesn't
// complete within the handshake deadline.
type ErrHandshakeTimeout struct{}

func (ErrHandshakeTimeout) Error() string { return "session: handshake timed out" }

// Handshake sends this side's hi frame and transitions Connecting -> HandshakeSent.
func (s *Session) Handshake(id string) error {
	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		return nil
	}
	s.state = HandshakeSent
	s.mu.Unlock()

	return s.send(wire.NewHi(id, s.version, s.peerID))
}

// CompatiblePolicy decides whether remoteVersion is acceptable given this
// side's version, per spec.md §4.9: "accept any peer whose major matches
// or whose version is declared compatible by a static table."
type CompatiblePolicy func(local, remote string) bool

// DefaultCompatible accepts any remote version sharing the local major
// version component (text before the first '.').
func DefaultCompatible(local, remote string) bool {
	return majorOf(local) == majorOf(remote)
}

func majorOf(v string) string {
	for i, r := range v {
		if r == '.' {
			return v[:i]
		}
	}
	return v
}

// OnHi processes an inbound hi frame. If this session hasn't sent its
// own hi yet (the peer initiated), it replies in kind with # set to the
// inbound @. Either way, compatibility is checked and the session
// promotes to Ready on success or Failed on rejection.
func (s *Session) OnHi(ackID string, hi wire.Hi, compatible CompatiblePolicy) error {
	if compatible == nil {
		compatible = DefaultCompatible
	}

	s.mu.Lock()
	if s.state == Closed || s.state == Failed {
		s.mu.Unlock()
		return nil
	}
	s.remoteID = hi.PeerID
	needsReply := s.state == Connecting
	s.mu.Unlock()

	if needsReply {
		if err := s.Handshake(ackID); err != nil {
			s.fail(err)
			return err
		}
		reply := wire.NewHi(newAckID(ackID), s.version, s.peerID)
		reply.CorrelationID = ackID
		if err := s.send(reply); err != nil {
			s.fail(err)
			return err
		}
	}

	if !compatible(s.version, hi.Version) {
		err := ErrIncompatibleVersion{Local: s.version, Remote: hi.Version}
		s.fail(err)
		return err
	}

	s.promote()
	return nil
}

func newAckID(original string) string { return original + "-ack" }

// ErrIncompatibleVersion is the Failed cause for a version mismatch.
type ErrIncompatibleVersion struct {
	Local, Remote string
}

func (e ErrIncompatibleVersion) Error() string {
	return "session: incompatible versions: local=" + e.Local + " remote=" + e.Remote
}

func (s *Session) promote() {
	s.mu.Lock()
	if s.state != Connecting && s.state != HandshakeSent {
		s.mu.Unlock()
		return
	}
	s.state = Ready
	s.mu.Unlock()
	s.readyOne.Do(func() { close(s.readyCh) })
}

func (s *Session) fail(cause error) {
	s.mu.Lock()
	if s.state == Closed || s.state == Failed || s.state == Ready {
		s.mu.Unlock()
		return
	}
	s.state = Failed
	s.failCause = cause
	s.mu.Unlock()
}

// FailCause returns the cause of a Failed session, or nil.
func (s *Session) FailCause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failCause
}

// CanDispatch reports whether user-level frames may flow: only in Ready.
func (s *Session) CanDispatch() bool {
	return s.State() == Ready
}

// Close initiates a graceful shutdown: Ready/HandshakeSent -> Closing,
// sends a best-effort bye, then -> Closed. bye delivery failures do not
// block the transition (spec.md §4.9: "bye is best-effort").
func (s *Session) Close(id string) {
	s.mu.Lock()
	if s.state == Closed || s.state == Failed {
		s.mu.Unlock()
		return
	}
	s.state = Closing
	peerID := s.peerID
	s.mu.Unlock()

	_ = s.send(wire.NewBye(id, peerID))

	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
}
