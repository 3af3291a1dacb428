// Package hamsync composes the storage, graph, wire, and network layers
// (internal/ham through internal/pool) into the engine applications embed
// (spec.md §4.12, C12). It generalizes the teacher's cmd/server
// composition root — flags, store, membership, replicator, router,
// graceful shutdown — into a programmatic Engine an embedder constructs
// directly rather than a standalone process.
package hamsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"hamsync/internal/config"
	"hamsync/internal/dam"
	"hamsync/internal/graph"
	"hamsync/internal/ham"
	"hamsync/internal/pool"
	"hamsync/internal/pubsub"
	"hamsync/internal/query"
	"hamsync/internal/randtoken"
	"hamsync/internal/relay"
	"hamsync/internal/relay/transport"
	"hamsync/internal/session"
	"hamsync/internal/storage"
	"hamsync/internal/tracker"
	"hamsync/internal/wire"
)

// ProtocolVersion is this engine's wire.Hi version, checked against peers
// via session.DefaultCompatible.
const ProtocolVersion = "1.0.0"

// Engine is one running instance of the graph: a store, a local clock, a
// subscription bus, and (optionally) a peer pool for network sync.
type Engine struct {
	cfg       config.Config
	machineID string

	adapter   storage.Adapter
	store     *graph.Store
	flattener *graph.Flattener
	bus       *pubsub.Bus
	tr        *tracker.Tracker
	pl        *pool.Pool
	qe        *query.Engine
	telemetry *dam.Telemetry

	log *logrus.Logger

	// inboundMu guards inboundHandler: the gin.HandlerFunc for the first
	// peer this engine dials. A single HTTP listen address can only serve
	// one fixed "/relay/frame" path, so this demo-scope reference wiring
	// supports one correspondent receiving pushes back; a real deployment
	// would demux by peer_id at that path instead.
	inboundMu      sync.Mutex
	inboundHandler gin.HandlerFunc
}

// New builds an Engine from cfg, opening the configured storage adapter
// and, if cfg.Peers/Relays are non-empty, starting the peer pool.
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	adapter, err := openAdapter(cfg)
	if err != nil {
		return nil, err
	}
	if err := adapter.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("hamsync: initialize storage: %w", err)
	}

	machineID := ham.NewMachineID()
	clock := ham.NewClock(machineID)
	store := graph.NewStore(adapter, clock)
	flattener := graph.NewFlattener(store)
	bus := pubsub.New()
	telemetry := dam.NewTelemetry()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	e := &Engine{
		cfg:       cfg,
		machineID: machineID,
		adapter:   adapter,
		store:     store,
		flattener: flattener,
		bus:       bus,
		telemetry: telemetry,
		log:       log,
	}

	e.tr = tracker.New(func(f wire.Frame) error { return e.pl.Send(context.Background(), f) })
	e.pl = pool.New(e.dial, cfg.Strategy(), cfg.MaxRelayConnections, cfg.MinRelayConnections, cfg.RelayDiscovery)
	e.qe = query.New(flattener, store, e.pl, e.tr)

	seeds := append(append([]string{}, cfg.Peers...), cfg.Relays...)
	if len(seeds) > 0 {
		if err := e.pl.Start(ctx, seeds); err != nil {
			e.log.WithError(err).Warn("hamsync: failed to open initial peer connections")
		}
	}

	return e, nil
}

func openAdapter(cfg config.Config) (storage.Adapter, error) {
	switch cfg.Storage {
	case "", "memory":
		return storage.NewMemory(), nil
	case "sqlite":
		if cfg.SQLite == "" {
			return nil, errors.New("hamsync: sqlite storage requires sqlite_path")
		}
		return storage.NewSQLite(cfg.SQLite)
	default:
		return nil, fmt.Errorf("hamsync: unknown storage adapter %q", cfg.Storage)
	}
}

// dial is the pool.Dialer: it builds an HTTP transport to url, wraps it in
// a relay.Relay and a session.Session, and pumps the relay's inbound
// frames into the engine's dispatch loop for this peer's lifetime.
func (e *Engine) dial(ctx context.Context, url string) (*relay.Relay, *session.Session, error) {
	timeout := time.Duration(e.cfg.TimeoutMS) * time.Millisecond
	t := transport.NewHTTP(url, timeout)
	r := relay.New(t)

	sess := session.New(ProtocolVersion, e.machineID, func(f wire.Frame) error {
		return r.Send(context.Background(), f)
	})

	e.inboundMu.Lock()
	if e.inboundHandler == nil {
		e.inboundHandler = t.Handler()
	}
	e.inboundMu.Unlock()

	go e.pump(r, sess, url)

	if err := sess.Handshake(e.nextID()); err != nil {
		return nil, nil, err
	}

	return r, sess, nil
}

// pump dispatches every frame a peer's transport delivers until it closes.
func (e *Engine) pump(r *relay.Relay, sess *session.Session, peerURL string) {
	for f := range r.Incoming() {
		e.handleFrame(context.Background(), r, sess, peerURL, f)
	}
}

func (e *Engine) handleFrame(ctx context.Context, r *relay.Relay, sess *session.Session, peerURL string, f wire.Frame) {
	switch f.Kind {
	case wire.KindHi:
		if f.Hi != nil {
			if err := sess.OnHi(f.ID, *f.Hi, session.DefaultCompatible); err != nil {
				e.log.WithError(err).WithField("peer", peerURL).Warn("hamsync: handshake failed")
			}
		}
		return
	case wire.KindBye:
		return
	}

	if !sess.CanDispatch() {
		return // spec.md §5 handshake atomicity: no user frames before Ready
	}

	switch f.Kind {
	case wire.KindGet:
		reply := e.qe.InboundGet(ctx, f.ID, f.Get)
		if err := r.Send(ctx, reply); err != nil {
			e.log.WithError(err).WithField("peer", peerURL).Warn("hamsync: failed to reply to inbound get")
		}
	case wire.KindPut:
		e.tr.OnAck(f.CorrelationID, f)
		e.commitAndPublish(ctx, f)
	case wire.KindDam:
		derr, err := dam.FromFrame(f)
		if err == nil {
			e.telemetry.Record(derr)
			e.tr.OnDam(f.CorrelationID, derr)
		}
	}
}

func (e *Engine) commitAndPublish(ctx context.Context, f wire.Frame) {
	nodes, err := wire.DecodeNodes(f.Put)
	if err != nil {
		e.telemetry.Record(dam.Wrap(dam.Malformed, "failed to decode inbound put", err))
		return
	}
	for nodeID, n := range nodes {
		merged, err := e.store.PutRemote(ctx, n)
		if err != nil {
			e.telemetry.Record(dam.Wrap(dam.Storage, "failed to commit inbound put", err).WithNode(nodeID))
			continue
		}
		e.bus.Publish(pubsub.Event{NodeID: nodeID, ChangedFields: merged.Meta.Fields(), Node: merged})
	}
}

func (e *Engine) nextID() string {
	id, err := randtoken.Generate(12)
	if err != nil {
		return fmt.Sprintf("m%d", time.Now().UnixNano())
	}
	return id
}

// Get begins a Chain rooted at path.
func (e *Engine) Get(path string) *Chain {
	return &Chain{engine: e, path: []string{path}}
}

// PutRoot writes tree at the top-level node_id root, per spec.md §4.12.
func (e *Engine) PutRoot(ctx context.Context, root string, tree graph.Tree) (ham.Node, error) {
	node, err := e.flattener.Write(ctx, root, tree, time.Now())
	if err != nil {
		return ham.Node{}, err
	}
	e.broadcastAndPublish(ctx, root, node)
	return node, nil
}

func (e *Engine) broadcastAndPublish(ctx context.Context, nodeID string, node ham.Node) {
	e.bus.Publish(pubsub.Event{NodeID: nodeID, ChangedFields: node.Meta.Fields(), Node: node})

	encoded, err := ham.EncodeNode(node)
	if err != nil {
		return
	}
	frame := wire.NewPut(e.nextID(), "", map[string]any{nodeID: encoded})
	e.pl.Broadcast(ctx, frame)
}

// AddPeer dials and registers url with the peer pool.
func (e *Engine) AddPeer(ctx context.Context, url string) error {
	return e.pl.AddPeer(ctx, url)
}

// RemovePeer disconnects and drops url from the peer pool.
func (e *Engine) RemovePeer(ctx context.Context, url string) error {
	return e.pl.RemovePeer(ctx, url)
}

// Close shuts the engine down: disconnects every peer and releases the
// storage adapter.
func (e *Engine) Close(ctx context.Context) error {
	poolErr := e.pl.Close(ctx)
	adapterErr := e.adapter.Close()
	if poolErr != nil {
		return poolErr
	}
	return adapterErr
}

// Telemetry exposes the engine's DAM error stream and counters.
func (e *Engine) Telemetry() *dam.Telemetry {
	return e.telemetry
}

// RelayHandler returns the gin.HandlerFunc that should be mounted at
// "/relay/frame" to receive pushes from the first peer this engine
// dialed, and whether one exists yet.
func (e *Engine) RelayHandler() (gin.HandlerFunc, bool) {
	e.inboundMu.Lock()
	defer e.inboundMu.Unlock()
	return e.inboundHandler, e.inboundHandler != nil
}
