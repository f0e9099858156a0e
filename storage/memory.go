package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/arcsign/evmrpc/types"
)

// MemoryStore implements TransactionStateStore over an in-memory map.
// Suitable for tests and single-process use; not durable across
// restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[types.Hash]*TxState
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[types.Hash]*TxState)}
}

func (m *MemoryStore) Get(hash types.Hash) (*TxState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.store[hash]
	if !ok {
		return nil, nil
	}
	return copyState(state), nil
}

func (m *MemoryStore) Set(hash types.Hash, state *TxState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[hash] = copyState(state)
	return nil
}

func (m *MemoryStore) Delete(hash types.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, hash)
	return nil
}

func (m *MemoryStore) List() ([]*TxState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*TxState, 0, len(m.store))
	for _, s := range m.store {
		result = append(result, copyState(s))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FirstSeen.After(result[j].FirstSeen) })
	return result, nil
}

func (m *MemoryStore) ListByStatus(status Status) ([]*TxState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*TxState, 0)
	for _, s := range m.store {
		if s.Status == status {
			result = append(result, copyState(s))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FirstSeen.After(result[j].FirstSeen) })
	return result, nil
}

func (m *MemoryStore) Clean(olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	count := 0
	for hash, s := range m.store {
		if s.FirstSeen.Before(cutoff) {
			delete(m.store, hash)
			count++
		}
	}
	return count, nil
}

func copyState(state *TxState) *TxState {
	if state == nil {
		return nil
	}
	raw := make([]byte, len(state.RawTx))
	copy(raw, state.RawTx)
	cp := *state
	cp.RawTx = raw
	return &cp
}
