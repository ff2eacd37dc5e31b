// Package storage provides the flat key-value backends that hold ledger state.
package storage

import "errors"

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("storage: backend closed")

// Store is the read/write surface shared by backends and batches.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set stores a value. On a Backend the write is durable when Set returns.
	Set(key, value string) error
	// Keys returns every key in the namespace, in no particular order.
	Keys() ([]string, error)
}

// Backend is a pluggable persistent key-value store.
type Backend interface {
	Store
	// Initialize loads existing state, or prepares an empty namespace.
	Initialize() error
	// Flush persists all state to stable storage.
	Flush() error
	Close() error
}

// Committer is implemented by backends that can apply a set of writes as
// one atomic, durable unit.
type Committer interface {
	Commit(writes map[string]string) error
}
