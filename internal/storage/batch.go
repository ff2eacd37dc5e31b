package storage

import (
	"errors"
	"fmt"
	"maps"
)

// ErrBatchDone is returned when a committed or discarded batch is reused.
var ErrBatchDone = errors.New("storage: batch already finished")

// Batch buffers writes over a Backend and applies them together.
// Reads see the buffered writes first. Nothing reaches the backend, and
// nothing is flushed, until Commit.
type Batch struct {
	backend Backend
	writes  map[string]string
	done    bool
}

// NewBatch starts a batch over backend.
func NewBatch(backend Backend) *Batch {
	return &Batch{
		backend: backend,
		writes:  make(map[string]string),
	}
}

// Get returns the buffered value for key, falling back to the backend.
func (b *Batch) Get(key string) (string, bool, error) {
	if v, ok := b.writes[key]; ok {
		return v, true, nil
	}
	return b.backend.Get(key)
}

// Set buffers a write.
func (b *Batch) Set(key, value string) error {
	if b.done {
		return ErrBatchDone
	}
	b.writes[key] = value
	return nil
}

// Keys returns the backend keys plus any new buffered keys.
func (b *Batch) Keys() ([]string, error) {
	keys, err := b.backend.Keys()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for k := range b.writes {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len returns the number of buffered writes.
func (b *Batch) Len() int {
	return len(b.writes)
}

// Commit applies the buffered writes. Backends implementing Committer apply
// them atomically; others receive each write followed by one Flush.
func (b *Batch) Commit() error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	if len(b.writes) == 0 {
		return nil
	}

	if c, ok := b.backend.(Committer); ok {
		if err := c.Commit(maps.Clone(b.writes)); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		return nil
	}

	// Fallback: non-atomic, one write at a time.
	for k, v := range b.writes {
		if err := b.backend.Set(k, v); err != nil {
			return fmt.Errorf("commit batch key %q: %w", k, err)
		}
	}
	if err := b.backend.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	return nil
}

// Discard drops the buffered writes.
func (b *Batch) Discard() {
	b.done = true
	b.writes = nil
}

// Update runs fn inside a batch. The batch commits when fn returns nil and
// is discarded on error or panic.
func Update(backend Backend, fn func(*Batch) error) error {
	batch := NewBatch(backend)
	defer func() {
		if !batch.done {
			batch.Discard()
		}
	}()

	if err := fn(batch); err != nil {
		return err
	}
	return batch.Commit()
}
