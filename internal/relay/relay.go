// Package relay implements the relay client (spec.md §4.11): one
// session over a single transport, queuing outbound sends and
// reassembling the inbound frame stream. Auto-reconnect is explicitly
// not implemented here — it is owned by internal/pool (spec.md §4.11).
package relay

import (
	"context"

	"hamsync/internal/relay/transport"
	"hamsync/internal/wire"
)

// Relay wraps one transport.Transport.
type Relay struct {
	transport transport.Transport
}

// New wraps t.
func New(t transport.Transport) *Relay {
	return &Relay{transport: t}
}

// Connect opens the underlying transport.
func (r *Relay) Connect(ctx context.Context) error {
	return r.transport.Connect(ctx)
}

// Disconnect closes the underlying transport.
func (r *Relay) Disconnect(ctx context.Context) error {
	return r.transport.Disconnect(ctx)
}

// Send enqueues f for delivery. Backpressure (a full outbound queue)
// surfaces as transport.ErrBackpressure, per spec.md §4.11.
func (r *Relay) Send(ctx context.Context, f wire.Frame) error {
	return r.transport.Send(ctx, f)
}

// Incoming exposes the decoded inbound frame stream.
func (r *Relay) Incoming() <-chan wire.Frame { return r.transport.Incoming() }

// State exposes the transport's connection-state stream.
func (r *Relay) State() <-chan transport.ConnState { return r.transport.State() }
