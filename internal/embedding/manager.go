package embedding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/store"
)

// CacheStore is the subset of the badger store the manager needs.
type CacheStore interface {
	GetEmbeddingCache(ctx context.Context, entity, schemaVersion, modelVersion string) (*store.EmbeddingCacheEntry, error)
	PutEmbeddingCache(ctx context.Context, entry store.EmbeddingCacheEntry) error
	DeleteEmbeddingCache(ctx context.Context, entity string) error
}

// Manager owns the per-entity embedding indexes. Lookups read an atomic
// snapshot; rebuilds happen synchronously on version mismatch and swap the
// snapshot in whole. A rebuild for one entity never blocks lookups on
// another.
type Manager struct {
	provider Provider
	cache    CacheStore
	logger   *slog.Logger

	mu      sync.Mutex // serializes rebuilds
	indexes sync.Map   // entity name -> *Index (immutable)
}

// NewManager creates an index manager backed by the given provider and cache.
func NewManager(provider Provider, cache CacheStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		cache:    cache,
		logger:   logger,
	}
}

// IndexFor returns the current index for the schema, rebuilding it when the
// snapshot is absent or was built for a different schema or model version.
func (m *Manager) IndexFor(ctx context.Context, schema *domain.TargetSchema) (*Index, error) {
	if cur := m.load(schema); cur != nil {
		return cur, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another rebuild may have finished while we waited for the lock.
	if cur := m.load(schema); cur != nil {
		return cur, nil
	}

	idx, err := m.rebuild(ctx, schema)
	if err != nil {
		return nil, err
	}
	m.indexes.Store(schema.EntityName, idx)
	return idx, nil
}

func (m *Manager) load(schema *domain.TargetSchema) *Index {
	v, ok := m.indexes.Load(schema.EntityName)
	if !ok {
		return nil
	}
	idx := v.(*Index)
	if idx.SchemaVersion != schema.Version || idx.ModelVersion != m.provider.ModelVersion() {
		return nil
	}
	return idx
}

// rebuild loads cached vectors when they verify, otherwise embeds every
// schema field through the provider and refreshes the cache.
func (m *Manager) rebuild(ctx context.Context, schema *domain.TargetSchema) (*Index, error) {
	model := m.provider.ModelVersion()

	if m.cache != nil {
		entry, err := m.cache.GetEmbeddingCache(ctx, schema.EntityName, schema.Version, model)
		if err == nil {
			m.logger.Debug("embedding index loaded from cache",
				"entity", schema.EntityName,
				"schema_version", schema.Version,
			)
			return NewIndex(schema.EntityName, schema.Version, model, entry.Vectors), nil
		}
		if domainerrors.Is(err, domainerrors.ErrCorruptCache) {
			m.logger.Warn("rebuilding corrupt embedding cache", "entity", schema.EntityName)
		} else if !domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil, err
		}
	}

	texts := make([]string, len(schema.Fields))
	for i := range schema.Fields {
		texts[i] = FieldText(&schema.Fields[i])
	}

	vecs, err := m.provider.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	vectors := make(map[string][]float32, len(schema.Fields))
	for i := range schema.Fields {
		vectors[schema.Fields[i].Name] = vecs[i]
	}

	cacheEntry := store.EmbeddingCacheEntry{
		EntityName:    schema.EntityName,
		SchemaVersion: schema.Version,
		ModelVersion:  model,
		CreatedAt:     time.Now().UTC(),
	}
	if len(vecs) > 0 {
		cacheEntry.Dim = len(vecs[0])
	}
	cacheEntry.Vectors = vectors
	if m.cache != nil {
		if err := m.cache.PutEmbeddingCache(ctx, cacheEntry); err != nil {
			// Cache write failure is not fatal; the index is already built.
			m.logger.Warn("failed to cache embedding index", "entity", schema.EntityName, "error", err)
		}
	}

	m.logger.Info("embedding index rebuilt",
		"entity", schema.EntityName,
		"schema_version", schema.Version,
		"fields", len(schema.Fields),
	)
	return NewIndex(schema.EntityName, schema.Version, model, vectors), nil
}

// Invalidate drops the in-memory snapshot and cached vectors for an entity.
// Wired to schema registry invalidation hooks.
func (m *Manager) Invalidate(ctx context.Context, entity string) {
	m.indexes.Delete(entity)
	if m.cache == nil {
		return
	}
	if err := m.cache.DeleteEmbeddingCache(ctx, entity); err != nil {
		m.logger.Warn("failed to drop embedding cache", "entity", entity, "error", err)
	}
}
