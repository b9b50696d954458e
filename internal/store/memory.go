package store

import (
	"context"
	"sync"
)

// memoryStore keeps the encoded snapshot in memory, so callers never share
// instances with it.
type memoryStore[T any] struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemoryStore creates a store that lives for the lifetime of the process.
func NewMemoryStore[T any]() Store[T] {
	return &memoryStore[T]{}
}

func (m *memoryStore[T]) Get(_ context.Context) (*Snapshot[T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return nil, nil
	}
	return decode[T](m.data)
}

func (m *memoryStore[T]) Set(_ context.Context, snapshot *Snapshot[T]) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}
