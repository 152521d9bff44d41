package counter

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node development.
// It deliberately offers no Incrementer, so the Allocator runs its
// compare-and-swap loop against it.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

func (m *MemoryStore) Load(_ context.Context, name string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *MemoryStore) Create(_ context.Context, name string, value int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[name]; ok {
		return false, nil
	}
	m.values[name] = value
	return true, nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, name string, current, next int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if !ok || v != current {
		return false, nil
	}
	m.values[name] = next
	return true, nil
}
