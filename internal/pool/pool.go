// Package pool implements the peer/relay pool (spec.md §4.10):
// connection lifecycle, health scoring, load-balancing strategy
// selection, and reconnect with exponential backoff + jitter. It
// generalizes the teacher's Membership (static node roster) from
// consistent-hash key ownership to health-weighted peer selection —
// this system replicates to every peer rather than sharding by key.
package pool

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"hamsync/internal/relay"
	"hamsync/internal/relay/transport"
	"hamsync/internal/session"
	"hamsync/internal/wire"
)

// Strategy selects one Ready peer for an outbound frame.
type Strategy string

const (
	RoundRobin     Strategy = "round_robin"
	LeastInFlight  Strategy = "least_in_flight"
	Random         Strategy = "random"
	HealthWeighted Strategy = "health_weighted" // default, spec.md §4.10
)

const (
	// DefaultMaxConnections and DefaultMinConnections are spec.md §4.10's
	// pool size defaults.
	DefaultMaxConnections = 5
	DefaultMinConnections = 1

	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 30 * time.Second

	ewmaAlpha = 0.3

	healthThreshold = 0.2
)

// Dialer builds a relay+session pair for a seed URL. internal/pool
// doesn't know how to construct transports itself (that's a §6
// collaborator concern); the caller supplies this factory.
type Dialer func(ctx context.Context, url string) (*relay.Relay, *session.Session, error)

type peer struct {
	url     string
	relay   *relay.Relay
	session *session.Session

	mu         sync.Mutex
	state      transport.ConnState
	successEWMA float64
	rttEWMA     float64
	inFlight    int64
	failures    int
}

func (p *peer) score() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != transport.ConnReady {
		return 0
	}
	return p.successEWMA * (1 / (1 + p.rttEWMA/100))
}

// Pool maintains up to MaxConnections and at least MinConnections
// sessions from a seed list, per spec.md §4.10.
type Pool struct {
	mu    sync.Mutex
	peers map[string]*peer
	order []string // insertion order, for round_robin

	dial     Dialer
	strategy Strategy

	maxConns int
	minConns int
	discovery bool

	rrCounter uint64
	closed    bool
}

// New builds a Pool. strategy defaults to HealthWeighted if empty.
func New(dial Dialer, strategy Strategy, maxConns, minConns int, discovery bool) *Pool {
	if strategy == "" {
		strategy = HealthWeighted
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	if minConns <= 0 {
		minConns = DefaultMinConnections
	}
	return &Pool{
		peers:     make(map[string]*peer),
		dial:      dial,
		strategy:  strategy,
		maxConns:  maxConns,
		minConns:  minConns,
		discovery: discovery,
	}
}

// ErrNoHealthyPeer is returned when no Ready peer is available to serve a send.
var ErrNoHealthyPeer = errors.New("pool: no healthy peer available")

// Start opens connections to up to minConns seed URLs. Idempotent.
func (p *Pool) Start(ctx context.Context, seeds []string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("pool: closed")
	}
	toOpen := seeds
	if len(toOpen) > p.minConns {
		toOpen = toOpen[:p.minConns]
	}
	p.mu.Unlock()

	for _, url := range toOpen {
		if err := p.AddPeer(ctx, url); err != nil {
			return err
		}
	}
	return nil
}

// AddPeer dials url and adds it to the pool, up to maxConns. Idempotent
// for a URL already present.
func (p *Pool) AddPeer(ctx context.Context, url string) error {
	p.mu.Lock()
	if _, exists := p.peers[url]; exists {
		p.mu.Unlock()
		return nil
	}
	if len(p.peers) >= p.maxConns {
		p.mu.Unlock()
		return errors.New("pool: at max connections")
	}
	p.mu.Unlock()

	r, s, err := p.dial(ctx, url)
	if err != nil {
		return err
	}

	pr := &peer{url: url, relay: r, session: s, state: transport.ConnConnecting, successEWMA: 1, rttEWMA: 50}

	p.mu.Lock()
	p.peers[url] = pr
	p.order = append(p.order, url)
	p.mu.Unlock()

	go p.watchState(pr)
	return pr.relay.Connect(ctx)
}

// RemovePeer disconnects and drops url from the pool.
func (p *Pool) RemovePeer(ctx context.Context, url string) error {
	p.mu.Lock()
	pr, ok := p.peers[url]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	delete(p.peers, url)
	p.order = removeStr(p.order, url)
	p.mu.Unlock()

	return pr.relay.Disconnect(ctx)
}

func removeStr(list []string, target string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

func (p *Pool) watchState(pr *peer) {
	for st := range pr.relay.State() {
		pr.mu.Lock()
		pr.state = st
		pr.mu.Unlock()

		if st == transport.ConnFailed || st == transport.ConnClosed {
			p.scheduleReconnect(pr)
		}
	}
}

// scheduleReconnect retries connecting pr with exponential backoff and
// jitter (500ms -> 30s), mirroring the teacher's
// replicateWithRetryAndResponse backoff shape generalized to connection
// retry instead of one HTTP call.
func (p *Pool) scheduleReconnect(pr *peer) {
	pr.mu.Lock()
	pr.failures++
	attempt := pr.failures
	pr.mu.Unlock()

	delay := backoffDelay(attempt)
	time.AfterFunc(delay, func() {
		p.mu.Lock()
		closed := p.closed
		_, stillTracked := p.peers[pr.url]
		p.mu.Unlock()
		if closed || !stillTracked {
			return
		}
		_ = pr.relay.Connect(context.Background())
	})
}

func backoffDelay(attempt int) time.Duration {
	shift := attempt - 1
	if shift > 6 { // 500ms * 2^6 = 32s > cap already
		shift = 6
	}
	base := reconnectBaseDelay * time.Duration(1<<uint(shift))
	if base > reconnectMaxDelay {
		base = reconnectMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

// OnHandshakeHealth records the outcome of a keep-alive/handshake round
// trip, updating the peer's RTT and success-rate EWMAs (spec.md §4.10.2).
func (p *Pool) OnHandshakeHealth(url string, rtt time.Duration, success bool) {
	p.mu.Lock()
	pr, ok := p.peers[url]
	p.mu.Unlock()
	if !ok {
		return
	}

	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.rttEWMA = ewmaAlpha*float64(rtt.Milliseconds()) + (1-ewmaAlpha)*pr.rttEWMA
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	pr.successEWMA = ewmaAlpha*outcome + (1-ewmaAlpha)*pr.successEWMA

	if pr.successEWMA*(1/(1+pr.rttEWMA/100)) < healthThreshold {
		pr.state = transport.ConnFailed
		go func() { _ = pr.relay.Disconnect(context.Background()) }()
	}
}

// Send picks one Ready peer by the pool's strategy and sends f through
// it. On send failure it marks that peer Failed, schedules reconnect,
// and immediately re-selects once (spec.md §4.10.3 failover).
func (p *Pool) Send(ctx context.Context, f wire.Frame) error {
	pr, err := p.selectPeer(nil)
	if err != nil {
		return err
	}

	if err := pr.relay.Send(ctx, f); err != nil {
		pr.mu.Lock()
		pr.state = transport.ConnFailed
		pr.mu.Unlock()
		p.scheduleReconnect(pr)

		retry, rerr := p.selectPeer(map[string]bool{pr.url: true})
		if rerr != nil {
			return err
		}
		return retry.relay.Send(ctx, f)
	}

	atomicIncInFlight(pr, 1)
	return nil
}

func atomicIncInFlight(pr *peer, delta int64) {
	pr.mu.Lock()
	pr.inFlight += delta
	pr.mu.Unlock()
}

// Broadcast sends f to every Ready peer, returning the URLs it
// succeeded against. Used by the query engine's fan-out (spec.md §4.6).
func (p *Pool) Broadcast(ctx context.Context, f wire.Frame) []string {
	p.mu.Lock()
	peers := make([]*peer, 0, len(p.peers))
	for _, pr := range p.peers {
		peers = append(peers, pr)
	}
	p.mu.Unlock()

	var ok []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, pr := range peers {
		pr.mu.Lock()
		ready := pr.state == transport.ConnReady
		pr.mu.Unlock()
		if !ready {
			continue
		}
		wg.Add(1)
		go func(pr *peer) {
			defer wg.Done()
			if err := pr.relay.Send(ctx, f); err == nil {
				mu.Lock()
				ok = append(ok, pr.url)
				mu.Unlock()
			}
		}(pr)
	}
	wg.Wait()
	return ok
}

func (p *Pool) selectPeer(exclude map[string]bool) (*peer, error) {
	p.mu.Lock()
	candidates := make([]*peer, 0, len(p.peers))
	for _, url := range p.order {
		if exclude[url] {
			continue
		}
		pr := p.peers[url]
		pr.mu.Lock()
		ready := pr.state == transport.ConnReady
		pr.mu.Unlock()
		if ready {
			candidates = append(candidates, pr)
		}
	}
	strategy := p.strategy
	p.mu.Unlock()

	if len(candidates) == 0 {
		return nil, ErrNoHealthyPeer
	}

	switch strategy {
	case RoundRobin:
		p.mu.Lock()
		idx := p.rrCounter % uint64(len(candidates))
		p.rrCounter++
		p.mu.Unlock()
		return candidates[idx], nil
	case LeastInFlight:
		sort.Slice(candidates, func(i, j int) bool {
			candidates[i].mu.Lock()
			candidates[j].mu.Lock()
			defer candidates[i].mu.Unlock()
			defer candidates[j].mu.Unlock()
			return candidates[i].inFlight < candidates[j].inFlight
		})
		return candidates[0], nil
	case Random:
		return candidates[rand.Intn(len(candidates))], nil
	default: // HealthWeighted
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].score() > candidates[j].score()
		})
		return candidates[0], nil
	}
}

// Close drains and disconnects every peer. Idempotent.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	peers := make([]*peer, 0, len(p.peers))
	for _, pr := range p.peers {
		peers = append(peers, pr)
	}
	p.mu.Unlock()

	var firstErr error
	for _, pr := range peers {
		if err := pr.relay.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ReadyCount returns how many peers are currently in the Ready state.
func (p *Pool) ReadyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, pr := range p.peers {
		pr.mu.Lock()
		if pr.state == transport.ConnReady {
			n++
		}
		pr.mu.Unlock()
	}
	return n
}
