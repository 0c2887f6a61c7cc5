// Package store persists the mapper-owned state in Badger: alias rules,
// cached target-schema embeddings, and cached LLM verdicts. Everything else
// the engine touches (schemas, corrections) lives elsewhere.
package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a new Store instance with the given database path.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil      // Disable Badger's internal logging
	opts.SyncWrites = true // Sync writes to disk to prevent corruption on crashes

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// putJSON marshals v and writes it under key within txn.
func putJSON[T any](txn *badger.Txn, key string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// getJSON reads key within txn and unmarshals into a new T.
// Returns errors.ErrNotFound when the key does not exist.
func getJSON[T any](txn *badger.Txn, key string) (*T, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domainerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var v T
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &v)
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &v, nil
}

// scanPrefix iterates all values under prefix in key order, unmarshalling
// each into T. The callback returns false to stop early.
func scanPrefix[T any](txn *badger.Txn, prefix string, fn func(key string, v *T) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var v T
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
		if err != nil {
			return fmt.Errorf("unmarshal %s: %w", item.Key(), err)
		}
		if !fn(string(item.Key()), &v) {
			return nil
		}
	}
	return nil
}
