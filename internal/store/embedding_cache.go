package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
)

// embCachePrefix keys cached schema embeddings by entity, schema version,
// and model version, so a change to either never serves stale vectors.
const embCachePrefix = "embcache:"

// EmbeddingCacheEntry holds the vectors for one (entity, schema version,
// model version) triple. Checksum covers the vectors so a torn or corrupted
// write is detected at load time instead of silently polluting similarity
// scores.
type EmbeddingCacheEntry struct {
	EntityName    string               `json:"entity_name"`
	SchemaVersion string               `json:"schema_version"`
	ModelVersion  string               `json:"model_version"`
	Dim           int                  `json:"dim"`
	Vectors       map[string][]float32 `json:"vectors"` // target field name -> vector
	Checksum      string               `json:"checksum"`
	CreatedAt     time.Time            `json:"created_at"`
}

func embCacheKey(entity, schemaVersion, modelVersion string) string {
	return embCachePrefix + entity + ":" + schemaVersion + ":" + modelVersion
}

// checksumVectors hashes the vectors in sorted field order. Field name,
// then the little-endian bit pattern of every component.
func checksumVectors(vectors map[string][]float32) string {
	names := make([]string, 0, len(vectors))
	for name := range vectors {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	var buf [4]byte
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		for _, f := range vectors[name] {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PutEmbeddingCache stores the vectors for an entity schema, stamping the
// checksum.
func (s *Store) PutEmbeddingCache(ctx context.Context, entry EmbeddingCacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.EntityName == "" || entry.SchemaVersion == "" || entry.ModelVersion == "" {
		return domainerrors.Validation("embedding cache entry requires entity, schema version, and model version")
	}

	entry.Checksum = checksumVectors(entry.Vectors)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	key := embCacheKey(entry.EntityName, entry.SchemaVersion, entry.ModelVersion)
	return s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, key, &entry)
	})
}

// GetEmbeddingCache loads cached vectors. Returns errors.ErrNotFound when the
// triple was never cached and errors.ErrCorruptCache when the stored checksum
// does not match the vectors; callers treat both as "rebuild from provider".
func (s *Store) GetEmbeddingCache(ctx context.Context, entity, schemaVersion, modelVersion string) (*EmbeddingCacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry *EmbeddingCacheEntry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = getJSON[EmbeddingCacheEntry](txn, embCacheKey(entity, schemaVersion, modelVersion))
		return err
	})
	if err != nil {
		return nil, err
	}

	if entry.Checksum != checksumVectors(entry.Vectors) {
		s.logger.Warn("embedding cache checksum mismatch, discarding entry",
			"entity", entity,
			"schema_version", schemaVersion,
		)
		return nil, domainerrors.ErrCorruptCache
	}
	return entry, nil
}

// DeleteEmbeddingCache drops every cached entry for an entity, across all
// schema and model versions. Called on schema invalidation.
func (s *Store) DeleteEmbeddingCache(ctx context.Context, entity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prefix := []byte(embCachePrefix + entity + ":")
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
