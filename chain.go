package hamsync

import (
	"context"
	"time"

	"hamsync/internal/graph"
	"hamsync/internal/ham"
	"hamsync/internal/pubsub"
	"hamsync/internal/query"
)

type projectionKind int

const (
	projFilter projectionKind = iota
	projMap
)

type projection struct {
	kind projectionKind
	fn   func(value any, key string) (any, bool) // Map returns (newValue, true); Filter returns (_, keep)
}

// Chain is the fluent path builder spec.md §4.12 describes:
// get("a").get("b").get("c") composes into path=["a","b","c"]; Filter/Map
// projections queue up and apply only on Once.
type Chain struct {
	engine      *Engine
	path        []string
	projections []projection
}

// Get extends the chain by one more path segment.
func (c *Chain) Get(segment string) *Chain {
	return &Chain{
		engine:      c.engine,
		path:        append(append([]string{}, c.path...), segment),
		projections: c.projections,
	}
}

// Filter queues a projection dropping entries where fn(value, key) is false.
func (c *Chain) Filter(fn func(value any, key string) bool) *Chain {
	return c.withProjection(projection{kind: projFilter, fn: func(v any, k string) (any, bool) {
		return v, fn(v, k)
	}})
}

// Map queues a projection replacing entries with fn(value, key).
func (c *Chain) Map(fn func(value any, key string) any) *Chain {
	return c.withProjection(projection{kind: projMap, fn: func(v any, k string) (any, bool) {
		return fn(v, k), true
	}})
}

func (c *Chain) withProjection(p projection) *Chain {
	return &Chain{
		engine:      c.engine,
		path:        c.path,
		projections: append(append([]projection{}, c.projections...), p),
	}
}

// Put writes value (a graph.Tree) at the chain's path.
func (c *Chain) Put(ctx context.Context, value graph.Tree) (ham.Node, error) {
	root, rest := c.path[0], c.path[1:]
	nodeID := root
	for _, seg := range rest {
		nodeID = nodeID + "/" + seg
	}
	node, err := c.engine.flattener.Write(ctx, nodeID, value, time.Now())
	if err != nil {
		return ham.Node{}, err
	}
	c.engine.broadcastAndPublish(ctx, nodeID, node)
	return node, nil
}

// Set performs a grow-only set write under the chain's path.
func (c *Chain) Set(ctx context.Context, value graph.Tree) (string, error) {
	root, rest := c.path[0], c.path[1:]
	parentID := root
	for _, seg := range rest {
		parentID = parentID + "/" + seg
	}
	return c.engine.flattener.Set(ctx, parentID, value, time.Now())
}

// Once resolves the chain's path once, applying queued projections to the
// result per spec.md §4.12.
func (c *Chain) Once(ctx context.Context, opts query.Options) query.Result {
	root, rest := c.path[0], c.path[1:]
	res := c.engine.qe.Query(ctx, root, rest, opts)
	if res.Err != nil || res.Data == nil {
		return res
	}
	projected := c.applyProjections(res.Data)
	if projected == nil {
		return query.Result{}
	}
	return query.Result{Data: projected, Meta: res.Meta}
}

func (c *Chain) applyProjections(data graph.Resolved) graph.Resolved {
	if len(c.projections) == 0 {
		return data
	}

	out := make(graph.Resolved, len(data))
	for k, v := range data {
		if k == "_" {
			continue
		}
		cur, keep := v, true
		for _, p := range c.projections {
			if !keep {
				break
			}
			cur, keep = p.fn(cur, k)
		}
		if keep {
			out[k] = cur
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// On subscribes to live updates for the chain's node_id (every path
// segment joined onto the root with "/"), per spec.md §4.7.
func (c *Chain) On(queueSize int, policy pubsub.OverflowPolicy) *pubsub.Subscription {
	nodeID := c.path[0]
	for _, seg := range c.path[1:] {
		nodeID = nodeID + "/" + seg
	}
	return c.engine.bus.Subscribe(nodeID, false, queueSize, policy)
}
