package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"hamsync/internal/wire"
)

// HTTP is the reference network transport, generalizing the teacher's
// internal/api push endpoint and internal/cluster.Replicator's HTTP
// client into a symmetric frame push/pull pair: this side POSTs frames
// to the peer's /relay/frame endpoint, and exposes the same endpoint for
// the peer to push frames back.
type HTTP struct {
	peerURL    string // base URL of the remote peer, e.g. "http://host:port"
	httpClient *http.Client

	mu        sync.Mutex
	connected bool

	in    chan wire.Frame
	state chan ConnState
}

// NewHTTP builds an HTTP transport that pushes outbound frames to
// peerURL + "/relay/frame" and expects inbound frames delivered to
// Handler (mounted by the caller's gin router).
func NewHTTP(peerURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTP{
		peerURL:    peerURL,
		httpClient: &http.Client{Timeout: timeout},
		in:         make(chan wire.Frame, DefaultQueueSize),
		state:      make(chan ConnState, 4),
	}
}

func (h *HTTP) Connect(ctx context.Context) error {
	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()
	h.state <- ConnReady
	return nil
}

func (h *HTTP) Disconnect(ctx context.Context) error {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
	h.state <- ConnClosed
	return nil
}

// Send POSTs f as JSON to the peer's /relay/frame endpoint, mirroring
// the teacher's doHTTPReplicate.
func (h *HTTP) Send(ctx context.Context, f wire.Frame) error {
	h.mu.Lock()
	connected := h.connected
	h.mu.Unlock()
	if !connected {
		return ErrNotConnected{}
	}

	raw, err := wire.Encode(f)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.peerURL+"/relay/frame", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transport: peer returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func (h *HTTP) Incoming() <-chan wire.Frame { return h.in }
func (h *HTTP) State() <-chan ConnState     { return h.state }

// Handler returns a gin.HandlerFunc that decodes a posted frame and
// delivers it to Incoming(), generalizing the teacher's
// InternalReplicate handler from one fixed payload shape to any wire
// frame.
func (h *HTTP) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var obj map[string]any
		if err := c.ShouldBindJSON(&obj); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		raw, err := json.Marshal(obj)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f, err := wire.Decode(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		select {
		case h.in <- f:
			c.Status(http.StatusNoContent)
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backpressure"})
		}
	}
}
