package statestore

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is an in-process [Store] for single-node deployments and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key]json.RawMessage
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]json.RawMessage)}
}

// Write implements [Store]. The state bytes are copied, so callers may reuse
// the buffer.
func (m *MemoryStore) Write(_ context.Context, key Key, state json.RawMessage) error {
	buf := make(json.RawMessage, len(state))
	copy(buf, state)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = buf
	return nil
}

// Read implements [Store].
func (m *MemoryStore) Read(_ context.Context, key Key) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(json.RawMessage, len(state))
	copy(out, state)
	return out, nil
}

// Delete implements [Store]. Deleting an absent key is not an error.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}
