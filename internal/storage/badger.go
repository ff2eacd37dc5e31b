package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend implements Backend using Badger.
type BadgerBackend struct {
	db *badger.DB
}

// NewBadger opens a Badger database at the given path.
func NewBadger(path string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable badger's built-in logging.

	db, err := badger.Open(opts)
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Cannot acquire directory lock") ||
			strings.Contains(errMsg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("database at %s is locked by another process (is another monterreyd instance running?): %w", path, err)
		}
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &BadgerBackend{db: db}, nil
}

// Initialize is a no-op; the database is opened by NewBadger.
func (b *BadgerBackend) Initialize() error {
	return nil
}

// Get retrieves a value by key.
func (b *BadgerBackend) Get(key string) (string, bool, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return "", false, ErrClosed
	}
	if err != nil {
		return "", false, fmt.Errorf("badger get: %w", err)
	}
	return string(val), true, nil
}

// Set stores a key-value pair and syncs it to disk.
func (b *BadgerBackend) Set(key, value string) error {
	return b.Commit(map[string]string{key: value})
}

// Commit writes all pairs in one transaction and syncs it to disk.
func (b *BadgerBackend) Commit(writes map[string]string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for k, v := range writes {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return b.Flush()
}

// Keys returns all keys.
func (b *BadgerBackend) Keys() ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys: %w", err)
	}
	return keys, nil
}

// Flush syncs the value log to disk.
func (b *BadgerBackend) Flush() error {
	if err := b.db.Sync(); err != nil {
		return fmt.Errorf("badger sync: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
