package cache

import (
	"context"
	"slices"
	"sync"

	"github.com/dm/dashsync/internal/model"
)

// MemoryStore holds the serialized snapshot in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(_ context.Context, s *model.Snapshot) error {
	b, err := encode(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = b
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	b := slices.Clone(m.data)
	m.mu.Unlock()
	if b == nil {
		return nil, nil
	}
	return decode(b)
}

// SetRaw stores b verbatim, bypassing encoding.
func (m *MemoryStore) SetRaw(b []byte) {
	m.mu.Lock()
	m.data = slices.Clone(b)
	m.mu.Unlock()
}

func (m *MemoryStore) Close() error { return nil }
