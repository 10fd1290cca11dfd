package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// memoryView reads the map without locking; the caller holds mu.
type memoryView struct{ s *MemoryStore }

func (v memoryView) Get(_ context.Context, key string) ([]byte, error) {
	val, ok := v.s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(val), nil
}

func (v memoryView) Keys(_ context.Context, prefix string) ([]string, error) {
	return filterKeys(v.s.data, prefix), nil
}

// Get returns a copy of the value at key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return memoryView{s}.Get(ctx, key)
}

// Keys lists keys starting with prefix in lexical order.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return memoryView{s}.Keys(ctx, prefix)
}

// Set stores a copy of value at key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Set(ctx, key, value) })
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	return s.Update(ctx, func(tx Tx) error { return tx.Delete(ctx, key) })
}

// Update runs fn under the write lock and applies its writes when it succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := newStagedTx(memoryView{s})
	if err := fn(tx); err != nil {
		return err
	}
	for _, k := range tx.sortedDeletes() {
		delete(s.data, k)
	}
	for _, k := range tx.sortedWrites() {
		s.data[k] = tx.writes[k]
	}
	return nil
}

// Ping reports whether the store is open.
func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close drops all values.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}
