package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileName is the document written inside a FileBackend directory.
const FileName = "db.json"

// ErrLocked is returned by Initialize when another backend holds the
// document open.
var ErrLocked = errors.New("storage: database is locked by another process")

// FileBackend implements Backend as a single JSON object on disk.
// Every flush replaces the whole document (temp file + rename), so a failed
// write never leaves a partially written database behind.
//
// The document is cached in memory, so a FileBackend holds an exclusive
// lock on <path>.lock from Initialize until Close.
type FileBackend struct {
	mu     sync.RWMutex
	path   string
	lock   *flock.Flock
	data   map[string]string
	closed bool
}

// NewFile creates a file backend storing its document in dir.
// Nothing is read until Initialize.
func NewFile(dir string) *FileBackend {
	return &FileBackend{
		path: filepath.Join(dir, FileName),
		data: make(map[string]string),
	}
}

// Path returns the location of the JSON document.
func (f *FileBackend) Path() string {
	return f.path
}

// Initialize locks and loads the document. A missing file yields an empty
// namespace; an unreadable or malformed file is an error. ErrLocked is
// returned while another backend has the same document open.
func (f *FileBackend) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	if f.lock == nil {
		if err := f.acquire(); err != nil {
			return err
		}
	}

	data, err := f.load()
	if err != nil {
		f.release()
		return err
	}
	f.data = data
	return nil
}

func (f *FileBackend) acquire() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	lock := flock.New(f.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.path, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", f.path, ErrLocked)
	}
	f.lock = lock
	return nil
}

func (f *FileBackend) release() {
	if f.lock == nil {
		return
	}
	_ = f.lock.Unlock()
	f.lock = nil
}

func (f *FileBackend) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	data, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return data, nil
}

// decodeDocument accepts string and numeric values; numbers are kept in
// their decimal text form.
func decodeDocument(raw []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	data := make(map[string]string, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case string:
			data[k] = val
		case json.Number:
			data[k] = val.String()
		default:
			return nil, fmt.Errorf("key %q: unsupported value type %T", k, v)
		}
	}
	return data, nil
}

// Get retrieves a value by key.
func (f *FileBackend) Get(key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.data[key]
	return v, ok, nil
}

// Set stores a key-value pair and flushes the document. If the flush fails
// the in-memory value is rolled back.
func (f *FileBackend) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	prev, had := f.data[key]
	f.data[key] = value
	if err := f.write(f.data); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

// Keys returns all keys.
func (f *FileBackend) Keys() ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Commit applies all writes with a single flush. On failure neither the
// document nor the in-memory state changes.
func (f *FileBackend) Commit(writes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	next := maps.Clone(f.data)
	maps.Copy(next, writes)
	if err := f.write(next); err != nil {
		return err
	}
	f.data = next
	return nil
}

// Flush writes the current document to disk.
func (f *FileBackend) Flush() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}
	return f.write(f.data)
}

// Close closes the backend and releases the lock. Every accepted write has
// already been flushed.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.release()
	return nil
}

func (f *FileBackend) write(data map[string]string) error {
	if f.lock == nil {
		return fmt.Errorf("write %s: backend not initialized", f.path)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal db: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".db-*.json")
	if err != nil {
		return fmt.Errorf("create temp db: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp db: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp db: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp db: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("chmod temp db: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace db: %w", err)
	}
	return nil
}
