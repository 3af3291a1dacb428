// Package graph implements the node store façade (spec.md §4.2, C2) and the
// flatten/resolve graph layer built on top of it (spec.md §4.3, C3).
package graph

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"hamsync/internal/ham"
	"hamsync/internal/storage"
)

// shardCount controls how many mutexes Store shards node_id locking across.
// Per spec.md §5, per-node serialization must hold but unrelated nodes must
// not contend — a single global lock (the teacher's style for its Store)
// would violate that at any real fan-out, so Store hashes node_id into one
// of shardCount lock buckets instead.
const shardCount = 256

// Store is the C2 façade: it owns the storage adapter and the instance's
// HAM clock, and is the single place new machine_state values are minted.
type Store struct {
	adapter storage.Adapter
	clock   *ham.Clock
	locks   [shardCount]sync.Mutex
}

// NewStore wires a Store to adapter using clock for machine_state minting.
func NewStore(adapter storage.Adapter, clock *ham.Clock) *Store {
	return &Store{adapter: adapter, clock: clock}
}

func (s *Store) shard(nodeID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(nodeID))
	return &s.locks[h.Sum32()%shardCount]
}

// Read fetches and validates a node's metadata, returning (nil, nil) for an
// absent node per spec.md §4.2.
func (s *Store) Read(ctx context.Context, nodeID string) (*ham.Node, error) {
	stored, ok, err := s.adapter.Get(ctx, nodeID)
	if err != nil {
		return nil, &storage.ErrUnavailable{Op: "read", Err: err}
	}
	if !ok {
		return nil, nil
	}
	n, err := ham.UnmarshalNode(stored.Data)
	if err != nil {
		return nil, err
	}
	if err := ham.Validate(n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Exists reports whether a node_id has ever been written, independent of
// whether it carries any (non-tombstoned) user fields — spec.md §8's
// "empty node" boundary case.
func (s *Store) Exists(ctx context.Context, nodeID string) (bool, error) {
	ok, err := s.adapter.Exists(ctx, nodeID)
	if err != nil {
		return false, &storage.ErrUnavailable{Op: "exists", Err: err}
	}
	return ok, nil
}

// Keys lists node_ids with the given prefix (empty prefix lists all).
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.adapter.Keys(ctx, prefix)
	if err != nil {
		return nil, &storage.ErrUnavailable{Op: "keys", Err: err}
	}
	return keys, nil
}

// Clear wipes the backing store. Intended for tests.
func (s *Store) Clear(ctx context.Context) error {
	return s.adapter.Clear(ctx)
}

// Put merges partial into the existing node at nodeID (if any) and commits
// the result, returning the committed node. now stamps every field's HAM
// timestamp that partial introduces (the caller already decided these are
// "new" writes; values arriving from the wire carry their own timestamps
// and go through PutRemote instead).
func (s *Store) Put(ctx context.Context, nodeID string, partial map[string]ham.Value, now time.Time) (ham.Node, error) {
	ts := float64(now.UnixMilli())
	state := make(map[string]float64, len(partial))
	for f := range partial {
		state[f] = ts
	}
	incoming := ham.Node{
		Fields: partial,
		Meta:   ham.Metadata{NodeID: nodeID, State: state, MachineState: s.clock.Next(0), MachineID: s.clock.MachineID()},
	}
	return s.commit(ctx, nodeID, incoming)
}

// PutRemote merges a fully-formed incoming node (as received from a peer,
// carrying its own HAM metadata) into the local state. This is the path
// spec.md §4.6 step 3 uses to commit query responses.
func (s *Store) PutRemote(ctx context.Context, incoming ham.Node) (ham.Node, error) {
	if err := ham.Validate(incoming); err != nil {
		return ham.Node{}, err
	}
	return s.commit(ctx, incoming.Meta.NodeID, incoming)
}

func (s *Store) commit(ctx context.Context, nodeID string, incoming ham.Node) (ham.Node, error) {
	lock := s.shard(nodeID)
	lock.Lock()
	defer lock.Unlock()

	cur, err := s.Read(ctx, nodeID)
	if err != nil {
		return ham.Node{}, err
	}

	var merged ham.Node
	if cur == nil {
		merged = ham.Node{
			Fields: incoming.Fields,
			Meta: ham.Metadata{
				NodeID:       nodeID,
				State:        incoming.Meta.State,
				MachineState: s.clock.Next(incoming.Meta.MachineState),
				MachineID:    s.clock.MachineID(),
			},
		}
	} else {
		observed := cur.Meta.MachineState
		if incoming.Meta.MachineState > observed {
			observed = incoming.Meta.MachineState
		}
		merged = ham.MergeNode(*cur, incoming, s.clock.MachineID(), s.clock.Next(observed))
	}

	if err := ham.Validate(merged); err != nil {
		return ham.Node{}, err
	}

	data, err := ham.MarshalNode(merged)
	if err != nil {
		return ham.Node{}, err
	}

	nowMillis := time.Now().UnixMilli()
	createdAt := nowMillis
	if cur != nil {
		if existing, ok, _ := s.adapter.Get(ctx, nodeID); ok {
			createdAt = existing.CreatedAt
		}
	}

	if err := s.adapter.Put(ctx, nodeID, storage.StoredNode{
		Key:       nodeID,
		Data:      data,
		CreatedAt: createdAt,
		UpdatedAt: nowMillis,
	}); err != nil {
		return ham.Node{}, &storage.ErrUnavailable{Op: "put", Err: err}
	}

	return merged, nil
}
