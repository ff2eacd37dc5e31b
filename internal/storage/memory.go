package storage

import (
	"maps"
	"sync"
)

// MemoryBackend implements Backend using an in-memory map.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

// NewMemory creates a new in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]string),
	}
}

// Initialize is a no-op; memory state starts empty.
func (m *MemoryBackend) Initialize() error {
	return nil
}

// Get retrieves a value by key.
func (m *MemoryBackend) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set stores a key-value pair.
func (m *MemoryBackend) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	return nil
}

// Keys returns all keys.
func (m *MemoryBackend) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Commit applies all writes at once.
func (m *MemoryBackend) Commit(writes map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	maps.Copy(m.data, writes)
	return nil
}

// Flush is a no-op.
func (m *MemoryBackend) Flush() error {
	return nil
}

// Close closes the backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
