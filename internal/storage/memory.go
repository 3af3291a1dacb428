package storage

import (
	"context"
	"strings"
	"sync"
)

// Memory is the canonical in-memory Adapter, modeled on the teacher's
// Store: a map guarded by a single RWMutex, read-heavy workloads favored
// over write throughput.
type Memory struct {
	mu   sync.RWMutex
	data map[string]StoredNode
}

// NewMemory returns a ready-to-use Memory adapter.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]StoredNode)}
}

func (m *Memory) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]StoredNode)
	}
	return nil
}

func (m *Memory) Put(ctx context.Context, key string, node StoredNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = node
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (StoredNode, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.data[key]
	return n, ok, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]StoredNode)
	return nil
}

func (m *Memory) Close() error { return nil }
