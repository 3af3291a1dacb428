// Package transport implements the §6 transport contract: a
// bidirectional frame mover with no application-level knowledge, plus
// two reference implementations (Loopback for in-process peers and
// tests, HTTP for real network peers).
package transport

import (
	"context"

	"hamsync/internal/wire"
)

// ConnState mirrors the transport-level connection state spec.md §6
// streams out: Connecting | Ready | Closed | Failed.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnReady
	ConnClosed
	ConnFailed
)

// Transport moves frames; it carries no session/handshake semantics of
// its own (those live in internal/session and internal/relay).
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, f wire.Frame) error
	Incoming() <-chan wire.Frame
	State() <-chan ConnState
}

// ErrBackpressure is returned by Send when the transport's outbound
// queue is full.
type ErrBackpressure struct{}

func (ErrBackpressure) Error() string { return "transport: backpressure: outbound queue full" }
