package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/id"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s, err := Open(filepath.Join(t.TempDir(), "corrections.db"), logger)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close() //nolint:errcheck // Test cleanup
	})
	return s
}

func appendTestCorrection(t *testing.T, s *Store, entity, source, target string) {
	t.Helper()
	err := s.AppendCorrection(context.Background(), &domain.Correction{
		ID:            id.MustGenerate("corr"),
		EntityName:    entity,
		Source:        source,
		WrongTarget:   "SOMETHING_ELSE",
		CorrectTarget: target,
		UserID:        "user-1",
	})
	require.NoError(t, err)
}

func TestAppendAndListCorrections(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	appendTestCorrection(t, s, "employee", "EmpNo", "EMPLOYEE_ID")
	appendTestCorrection(t, s, "employee", "EmpNo", "EMPLOYEE_ID")

	got, err := s.ListCorrections(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "EMPLOYEE_ID", got[0].CorrectTarget)
	assert.Equal(t, "user-1", got[0].UserID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestListCorrections_CanonicalSourceMatching(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// Different spellings of the same source count together.
	appendTestCorrection(t, s, "employee", "EmpNo", "EMPLOYEE_ID")
	appendTestCorrection(t, s, "employee", "EMP_NO", "EMPLOYEE_ID")
	appendTestCorrection(t, s, "employee", "emp no", "EMPLOYEE_ID")

	got, err := s.ListCorrections(ctx, "employee", "emp-no")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestCorrectionTallies(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	appendTestCorrection(t, s, "employee", "EmpNo", "EMPLOYEE_ID")
	appendTestCorrection(t, s, "employee", "EmpNo", "EMPLOYEE_ID")
	appendTestCorrection(t, s, "employee", "EmpNo", "BADGE_NUMBER")

	tallies, total, err := s.CorrectionTallies(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, tallies, 2)
	assert.Equal(t, "EMPLOYEE_ID", tallies[0].Target)
	assert.Equal(t, 2, tallies[0].Count)
	assert.Equal(t, "BADGE_NUMBER", tallies[1].Target)
}

func TestCorrectionTallies_Empty(t *testing.T) {
	s := setupTestStore(t)

	tallies, total, err := s.CorrectionTallies(context.Background(), "employee", "nothing")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tallies)
}

func TestDistinctSources(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	appendTestCorrection(t, s, "employee", "EmpNo", "EMPLOYEE_ID")
	appendTestCorrection(t, s, "employee", "EmpNo", "EMPLOYEE_ID")
	appendTestCorrection(t, s, "customer", "cust_email", "EMAIL")

	pairs, err := s.DistinctSources(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "customer", pairs[0].EntityName)
	assert.Equal(t, "cust_email", pairs[0].Source)
	assert.Equal(t, "employee", pairs[1].EntityName)
}
