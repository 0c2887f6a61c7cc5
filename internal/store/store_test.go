package store

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
)

// setupTestStore creates a store backed by a temp directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s, err := New(t.TempDir(), logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close() //nolint:errcheck // Test cleanup
	})
	return s
}

func TestPromoteAliasRule_CreateAndLookup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.PromoteAliasRule(ctx, domain.AliasRule{
		EntityName: "employee",
		Target:     "EMPLOYEE_ID",
		Alias:      "PersonID",
		Confidence: 0.95,
		Origin:     domain.OriginLearned,
	})
	require.NoError(t, err)
	assert.True(t, created)

	// Lookup is by canonical form, so case and separators don't matter.
	rule, err := s.LookupAliasRule(ctx, "employee", "person_id")
	require.NoError(t, err)
	assert.Equal(t, "EMPLOYEE_ID", rule.Target)
	assert.Equal(t, domain.OriginLearned, rule.Origin)
	assert.False(t, rule.Superseded)
}

func TestPromoteAliasRule_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rule := domain.AliasRule{
		EntityName: "employee",
		Target:     "EMPLOYEE_ID",
		Alias:      "EmpNo",
		Confidence: 0.95,
		Origin:     domain.OriginLearned,
	}

	created, err := s.PromoteAliasRule(ctx, rule)
	require.NoError(t, err)
	assert.True(t, created)

	// Re-promoting the same alias/target pair is a no-op.
	created, err = s.PromoteAliasRule(ctx, rule)
	require.NoError(t, err)
	assert.False(t, created)

	rules, err := s.ListAliasRules(ctx, "employee")
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestPromoteAliasRule_SupersedesConflicting(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.PromoteAliasRule(ctx, domain.AliasRule{
		EntityName: "employee",
		Target:     "EMPLOYEE_ID",
		Alias:      "EmpNo",
		Confidence: 0.95,
		Origin:     domain.OriginLearned,
	})
	require.NoError(t, err)

	created, err := s.PromoteAliasRule(ctx, domain.AliasRule{
		EntityName: "employee",
		Target:     "BADGE_NUMBER",
		Alias:      "EmpNo",
		Confidence: 0.95,
		Origin:     domain.OriginLearned,
	})
	require.NoError(t, err)
	assert.True(t, created)

	// Active rule now points at the new target.
	rule, err := s.LookupAliasRule(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.Equal(t, "BADGE_NUMBER", rule.Target)

	// The old rule survives, marked superseded. Promotion is monotonic.
	rules, err := s.ListAliasRules(ctx, "employee")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	var superseded int
	for _, r := range rules {
		if r.Superseded {
			superseded++
			assert.Equal(t, "EMPLOYEE_ID", r.Target)
		}
	}
	assert.Equal(t, 1, superseded)
}

func TestSnapshotAliasRules_ExcludesSuperseded(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.PromoteAliasRule(ctx, domain.AliasRule{
		EntityName: "employee", Target: "EMPLOYEE_ID", Alias: "EmpNo",
		Confidence: 0.95, Origin: domain.OriginLearned,
	})
	require.NoError(t, err)
	_, err = s.PromoteAliasRule(ctx, domain.AliasRule{
		EntityName: "employee", Target: "BADGE_NUMBER", Alias: "EmpNo",
		Confidence: 0.95, Origin: domain.OriginLearned,
	})
	require.NoError(t, err)

	snapshot, err := s.SnapshotAliasRules(ctx, "employee")
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "BADGE_NUMBER", snapshot["empno"].Target)
}

func TestLookupAliasRule_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.LookupAliasRule(context.Background(), "employee", "nothing")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := EmbeddingCacheEntry{
		EntityName:    "employee",
		SchemaVersion: "v1",
		ModelVersion:  "test-model",
		Dim:           3,
		Vectors: map[string][]float32{
			"FIRST_NAME": {0.1, 0.2, 0.3},
			"EMAIL":      {0.4, 0.5, 0.6},
		},
	}
	require.NoError(t, s.PutEmbeddingCache(ctx, entry))

	got, err := s.GetEmbeddingCache(ctx, "employee", "v1", "test-model")
	require.NoError(t, err)
	assert.Equal(t, entry.Vectors, got.Vectors)
	assert.NotEmpty(t, got.Checksum)

	// A different schema version is a separate entry.
	_, err = s.GetEmbeddingCache(ctx, "employee", "v2", "test-model")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}

func TestEmbeddingCache_CorruptionDetected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	entry := EmbeddingCacheEntry{
		EntityName:    "employee",
		SchemaVersion: "v1",
		ModelVersion:  "test-model",
		Dim:           2,
		Vectors:       map[string][]float32{"EMAIL": {0.4, 0.5}},
	}
	require.NoError(t, s.PutEmbeddingCache(ctx, entry))

	// Tamper with the stored entry directly, keeping the old checksum.
	tampered := entry
	tampered.Vectors = map[string][]float32{"EMAIL": {9.9, 9.9}}
	tampered.Checksum = checksumVectors(entry.Vectors)
	key := embCacheKey("employee", "v1", "test-model")
	err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, key, &tampered)
	})
	require.NoError(t, err)

	_, err = s.GetEmbeddingCache(ctx, "employee", "v1", "test-model")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrCorruptCache))
}

func TestDeleteEmbeddingCache(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, version := range []string{"v1", "v2"} {
		require.NoError(t, s.PutEmbeddingCache(ctx, EmbeddingCacheEntry{
			EntityName:    "employee",
			SchemaVersion: version,
			ModelVersion:  "test-model",
			Dim:           1,
			Vectors:       map[string][]float32{"EMAIL": {1}},
		}))
	}

	require.NoError(t, s.DeleteEmbeddingCache(ctx, "employee"))

	_, err := s.GetEmbeddingCache(ctx, "employee", "v1", "test-model")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
	_, err = s.GetEmbeddingCache(ctx, "employee", "v2", "test-model")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}

func TestLLMVerdict_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	verdict := LLMVerdict{
		TargetField: "HIRE_DATE",
		Confidence:  0.72,
		Reasoning:   "sample values look like dates",
	}
	require.NoError(t, s.PutLLMVerdict(ctx, "employee", "start_dt", verdict, time.Hour))

	got, err := s.GetLLMVerdict(ctx, "employee", "start_dt")
	require.NoError(t, err)
	assert.Equal(t, "HIRE_DATE", got.TargetField)
	assert.InDelta(t, 0.72, got.Confidence, 1e-9)

	_, err = s.GetLLMVerdict(ctx, "employee", "other_field")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}
