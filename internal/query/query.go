// Package query implements the query engine (spec.md §4.6):
// local-then-network path resolution, fan-out to peers, reconciliation
// through HAM merge, and the staleness-retry heuristic. It generalizes
// the teacher's Replicator.CoordinateRead quorum-gather loop: fan out,
// collect on a buffered channel, reconcile — but reconciliation is
// ham.MergeNode instead of vector-clock comparison, and "read repair"
// becomes "commit locally so future reads are fresh".
package query

import (
	"context"
	"time"

	"hamsync/internal/dam"
	"hamsync/internal/graph"
	"hamsync/internal/ham"
	"hamsync/internal/tracker"
	"hamsync/internal/wire"
)

// StalenessWindow and StalenessRetryDelay implement spec.md §4.6.1's
// heuristic: a result whose newest field timestamp is within this
// window of wall clock gets one extra fetch after this delay.
const (
	StalenessWindow     = 30 * time.Second
	StalenessRetryDelay = 800 * time.Millisecond
)

// Broadcaster fans a frame out to peers and reports which ones accepted
// it, decoupling query from internal/pool's concrete type.
type Broadcaster interface {
	Broadcast(ctx context.Context, f wire.Frame) []string
}

// Options configures one Query call.
type Options struct {
	Timeout time.Duration
	Network bool // if false, restrict to local storage (spec.md §4.6)

	// StalenessRetry toggles the heuristic retry (Open Question 2);
	// disabled by default so correctness never depends on wall-clock
	// synchronization between peers.
	StalenessRetry bool
}

// Result is what a Query call resolves to: Data (possibly nil for
// "not found"), or Err for a surfaced failure. A nil Data with a nil
// Err is spec.md's normal "not found" outcome.
type Result struct {
	Data graph.Resolved
	Meta ham.Metadata
	Err  error
}

// Engine runs queries against a local Flattener, optionally fanning out
// to peers via a Broadcaster and tracking responses via a Tracker.
type Engine struct {
	flattener   *graph.Flattener
	store       *graph.Store
	broadcaster Broadcaster
	tracker     *tracker.Tracker
	maxDepth    int
}

// New wires an Engine. broadcaster and trk may be nil when network
// queries are never issued (options.Network always false).
func New(flattener *graph.Flattener, store *graph.Store, broadcaster Broadcaster, trk *tracker.Tracker) *Engine {
	return &Engine{
		flattener:   flattener,
		store:       store,
		broadcaster: broadcaster,
		tracker:     trk,
		maxDepth:    graph.DefaultMaxDepth,
	}
}

// Query resolves (root, path) per spec.md §4.6's algorithm.
func (e *Engine) Query(ctx context.Context, root string, path []string, opts Options) Result {
	nodeID, localErr := e.join(root, path)
	if localErr != nil {
		return Result{Err: localErr}
	}

	data, meta, err := e.flattener.Resolve(ctx, nodeID, e.maxDepth)
	if err != nil {
		return Result{Err: dam.Wrap(dam.Storage, "local resolve failed", err)}
	}

	if !opts.Network || !e.isStaleOrMissing(data, meta) {
		if opts.StalenessRetry && isPossiblyStale(meta) {
			return e.retryOnce(ctx, nodeID, data, meta)
		}
		return Result{Data: data, Meta: meta}
	}

	if e.broadcaster == nil {
		return Result{Data: data, Meta: meta}
	}

	return e.fanOut(ctx, nodeID, opts)
}

// join mirrors Traverse's path composition without performing the walk
// itself (Resolve already walks from nodeID down).
func (e *Engine) join(root string, path []string) (string, error) {
	nodeID := root
	for _, seg := range path {
		nodeID = nodeID + "/" + seg
	}
	return nodeID, nil
}

func (e *Engine) isStaleOrMissing(data graph.Resolved, meta ham.Metadata) bool {
	return data == nil || isPossiblyStale(meta)
}

// isPossiblyStale implements spec.md §4.6.1: any field timestamp newer
// than now-30s signals a possibly ongoing conflict resolution.
func isPossiblyStale(meta ham.Metadata) bool {
	cutoff := float64(time.Now().Add(-StalenessWindow).UnixMilli())
	for _, ts := range meta.State {
		if ts > cutoff {
			return true
		}
	}
	return false
}

func (e *Engine) retryOnce(ctx context.Context, nodeID string, data graph.Resolved, meta ham.Metadata) Result {
	timer := time.NewTimer(StalenessRetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{Data: data, Meta: meta}
	case <-timer.C:
	}

	fresh, freshMeta, err := e.flattener.Resolve(ctx, nodeID, e.maxDepth)
	if err != nil {
		return Result{Data: data, Meta: meta}
	}
	return Result{Data: fresh, Meta: freshMeta}
}

// fanOut broadcasts a get frame, waits up to opts.Timeout for the first
// tracked reply, commits it through the store (HAM merge) if it is a put,
// and resolves with the current local view once that reply lands or the
// timeout elapses (spec.md §4.6 steps 2-4). Later replies are not
// collected here.
func (e *Engine) fanOut(ctx context.Context, nodeID string, opts Options) Result {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	queryID := nodeID + "#" + randSuffix()
	frame := wire.NewGet(queryID, wire.BuildQuery(nodeID, nil))
	e.broadcaster.Broadcast(ctx, frame)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var inbound <-chan tracker.Outcome
	if e.tracker != nil {
		sink, err := e.tracker.Send(ctx, frame, timeout)
		if err == nil {
			inbound = sink
		}
	}

	if inbound != nil {
		select {
		case out := <-inbound:
			if out.Ack.Kind == wire.KindPut {
				e.commitReply(ctx, out.Ack)
			}
		case <-deadline.C:
		case <-ctx.Done():
		}
	} else {
		select {
		case <-deadline.C:
		case <-ctx.Done():
		}
	}

	data, meta, err := e.flattener.Resolve(ctx, nodeID, e.maxDepth)
	if err != nil {
		return Result{Err: dam.Wrap(dam.Storage, "local resolve failed after fan-out", err)}
	}

	if opts.StalenessRetry && isPossiblyStale(meta) {
		return e.retryOnce(ctx, nodeID, data, meta)
	}
	return Result{Data: data, Meta: meta}
}

func (e *Engine) commitReply(ctx context.Context, reply wire.Frame) {
	nodes, err := wire.DecodeNodes(reply.Put)
	if err != nil {
		return
	}
	for _, n := range nodes {
		_, _ = e.store.PutRemote(ctx, n)
	}
}

// InboundGet handles a peer's get frame (spec.md §4.6 "Inbound query
// handling"): resolve locally, never forward (to avoid amplification),
// and reply with a put frame or a dam on error.
func (e *Engine) InboundGet(ctx context.Context, queryID string, shape map[string]any) wire.Frame {
	q, err := wire.ParseQuery(shape)
	if err != nil {
		derr := dam.New(dam.Malformed, err.Error())
		return dam.ToFrame(randSuffix(), queryID, derr)
	}

	nodeID := q.NodeID
	for _, seg := range q.Path {
		nodeID = nodeID + "/" + seg
	}

	node, readErr := e.store.Read(ctx, nodeID)
	if readErr != nil {
		derr := dam.Wrap(dam.Storage, "resolve failed", readErr).WithNode(nodeID)
		return dam.ToFrame(randSuffix(), queryID, derr)
	}
	if node == nil {
		return wire.NewPut(randSuffix(), queryID, map[string]any{})
	}

	encoded, encErr := ham.EncodeNode(*node)
	if encErr != nil {
		derr := dam.Wrap(dam.Malformed, "encode failed", encErr).WithNode(nodeID)
		return dam.ToFrame(randSuffix(), queryID, derr)
	}

	return wire.NewPut(randSuffix(), queryID, map[string]any{nodeID: encoded})
}

func randSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// time-seeded only to diversify ids within one process; correctness
	// never depends on this being globally unique, only locally distinct
	// enough not to collide with an in-flight id.
	n := time.Now().UnixNano()
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = alphabet[n%int64(len(alphabet))]
		n /= int64(len(alphabet))
	}
	return string(buf)
}
