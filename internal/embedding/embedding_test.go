package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/match"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
	"github.com/fieldmapapp/fieldmap-server/internal/store"
)

// fakeProvider returns fixed vectors per text, falling back to a default so
// unknown texts still embed. Calls counts Embed invocations.
type fakeProvider struct {
	vectors map[string][]float32
	fail    error
	calls   int
}

func (p *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := p.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float32{0.1, 0.1, 0.1}
		}
	}
	return out, nil
}

func (p *fakeProvider) ModelVersion() string { return "test-model-v1" }

// fakeCache is an in-memory CacheStore.
type fakeCache struct {
	entries map[string]*store.EmbeddingCacheEntry
	corrupt bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*store.EmbeddingCacheEntry)}
}

func cacheKey(entity, schemaVersion, modelVersion string) string {
	return entity + ":" + schemaVersion + ":" + modelVersion
}

func (c *fakeCache) GetEmbeddingCache(_ context.Context, entity, schemaVersion, modelVersion string) (*store.EmbeddingCacheEntry, error) {
	if c.corrupt {
		return nil, domainerrors.ErrCorruptCache
	}
	e, ok := c.entries[cacheKey(entity, schemaVersion, modelVersion)]
	if !ok {
		return nil, domainerrors.ErrNotFound
	}
	return e, nil
}

func (c *fakeCache) PutEmbeddingCache(_ context.Context, entry store.EmbeddingCacheEntry) error {
	c.entries[cacheKey(entry.EntityName, entry.SchemaVersion, entry.ModelVersion)] = &entry
	return nil
}

func (c *fakeCache) DeleteEmbeddingCache(_ context.Context, entity string) error {
	for k := range c.entries {
		if len(k) > len(entity) && k[:len(entity)+1] == entity+":" {
			delete(c.entries, k)
		}
	}
	return nil
}

func testSchema(version string) *domain.TargetSchema {
	return &domain.TargetSchema{
		EntityName: "employee",
		Version:    version,
		Fields: []domain.SchemaField{
			{Name: "EMPLOYEE_ID", Type: domain.FieldTypeString, Required: true},
			{Name: "FIRST_NAME", Type: domain.FieldTypeString},
			{Name: "EMAIL", Type: domain.FieldTypeEmail},
		},
	}
}

func testProvider() *fakeProvider {
	return &fakeProvider{vectors: map[string][]float32{
		FieldText(&domain.SchemaField{Name: "EMPLOYEE_ID"}): {1, 0, 0},
		FieldText(&domain.SchemaField{Name: "FIRST_NAME"}):  {0, 1, 0},
		FieldText(&domain.SchemaField{Name: "EMAIL"}):       {0, 0, 1},
	}}
}

func TestIndexTopK(t *testing.T) {
	idx := NewIndex("employee", "v1", "m1", map[string][]float32{
		"EMPLOYEE_ID": {1, 0, 0},
		"FIRST_NAME":  {0, 1, 0},
		"EMAIL":       {0.9, 0.1, 0},
	})
	require.Equal(t, 3, idx.Len())

	matches := idx.TopK([]float32{1, 0, 0}, 2, nil)
	require.Len(t, matches, 2)
	assert.Equal(t, "EMPLOYEE_ID", matches[0].Target)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "EMAIL", matches[1].Target)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestIndexTopKExcludesClaimedTargets(t *testing.T) {
	idx := NewIndex("employee", "v1", "m1", map[string][]float32{
		"EMPLOYEE_ID": {1, 0, 0},
		"EMAIL":       {0.9, 0.1, 0},
	})

	matches := idx.TopK([]float32{1, 0, 0}, 5, map[string]bool{"EMPLOYEE_ID": true})
	require.Len(t, matches, 1)
	assert.Equal(t, "EMAIL", matches[0].Target)
}

func TestIndexTopKTieBreaksByName(t *testing.T) {
	idx := NewIndex("employee", "v1", "m1", map[string][]float32{
		"B_FIELD": {1, 0, 0},
		"A_FIELD": {1, 0, 0},
	})

	matches := idx.TopK([]float32{1, 0, 0}, 2, nil)
	require.Len(t, matches, 2)
	assert.Equal(t, "A_FIELD", matches[0].Target)
	assert.Equal(t, "B_FIELD", matches[1].Target)
}

func TestManagerRebuildsAndCaches(t *testing.T) {
	provider := testProvider()
	cache := newFakeCache()
	mgr := NewManager(provider, cache, nil)

	schema := testSchema("v1")
	idx, err := mgr.IndexFor(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 1, provider.calls)
	assert.Len(t, cache.entries, 1)

	// Snapshot reuse: no further provider calls for the same version.
	_, err = mgr.IndexFor(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestManagerRebuildsOnSchemaVersionChange(t *testing.T) {
	provider := testProvider()
	mgr := NewManager(provider, newFakeCache(), nil)

	_, err := mgr.IndexFor(context.Background(), testSchema("v1"))
	require.NoError(t, err)
	_, err = mgr.IndexFor(context.Background(), testSchema("v2"))
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestManagerLoadsFromCache(t *testing.T) {
	provider := testProvider()
	cache := newFakeCache()

	// Warm the cache with one manager, then read it with a fresh one.
	first := NewManager(provider, cache, nil)
	_, err := first.IndexFor(context.Background(), testSchema("v1"))
	require.NoError(t, err)

	second := NewManager(provider, cache, nil)
	idx, err := second.IndexFor(context.Background(), testSchema("v1"))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 1, provider.calls)
}

func TestManagerRebuildsOnCorruptCache(t *testing.T) {
	provider := testProvider()
	cache := newFakeCache()
	cache.corrupt = true
	mgr := NewManager(provider, cache, nil)

	idx, err := mgr.IndexFor(context.Background(), testSchema("v1"))
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 1, provider.calls)
}

func TestManagerPropagatesProviderFailure(t *testing.T) {
	provider := &fakeProvider{fail: domainerrors.ErrProviderUnavailable}
	mgr := NewManager(provider, newFakeCache(), nil)

	_, err := mgr.IndexFor(context.Background(), testSchema("v1"))
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrProviderUnavailable))
}

func TestManagerInvalidate(t *testing.T) {
	provider := testProvider()
	cache := newFakeCache()
	mgr := NewManager(provider, cache, nil)

	_, err := mgr.IndexFor(context.Background(), testSchema("v1"))
	require.NoError(t, err)

	mgr.Invalidate(context.Background(), "employee")
	assert.Empty(t, cache.entries)

	_, err = mgr.IndexFor(context.Background(), testSchema("v1"))
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
}

func TestSemanticStagePropose(t *testing.T) {
	provider := testProvider()
	provider.vectors[SourceText("EMP_IDENTIFIER", nil)] = []float32{0.95, 0.05, 0}
	mgr := NewManager(provider, newFakeCache(), nil)
	stage := NewSemanticStage(mgr, 0.40)

	cands, err := stage.Propose(context.Background(), &match.Request{
		Field:  normalize.Normalize("EMP_IDENTIFIER"),
		Schema: testSchema("v1"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, "EMPLOYEE_ID", cands[0].Target)
	assert.Equal(t, domain.MethodSemantic, cands[0].Method)
	assert.Greater(t, cands[0].Confidence, 0.9)
	for _, c := range cands {
		assert.GreaterOrEqual(t, c.Confidence, 0.40)
	}
}

func TestSemanticStageProviderDown(t *testing.T) {
	provider := &fakeProvider{fail: domainerrors.ErrProviderUnavailable}
	stage := NewSemanticStage(NewManager(provider, newFakeCache(), nil), 0.40)

	_, err := stage.Propose(context.Background(), &match.Request{
		Field:  normalize.Normalize("EMP_ID"),
		Schema: testSchema("v1"),
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrProviderUnavailable))
}
