package learning

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/store"
	"github.com/fieldmapapp/fieldmap-server/internal/store/sqlite"
)

func setupLearningStore(t *testing.T) (*Store, *store.Store) {
	t.Helper()

	rules, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rules.Close() })

	log, err := sqlite.Open(filepath.Join(t.TempDir(), "corrections.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return NewStore(log, rules, Config{}, nil), rules
}

func correction(source, wrong, correct string) *domain.Correction {
	return &domain.Correction{
		EntityName:    "employee",
		Source:        source,
		WrongTarget:   wrong,
		CorrectTarget: correct,
		UserID:        "user-1",
	}
}

func TestRecordCorrectionValidates(t *testing.T) {
	ls, _ := setupLearningStore(t)
	ctx := context.Background()

	err := ls.RecordCorrection(ctx, &domain.Correction{EntityName: "employee"})
	require.Error(t, err)
}

func TestPromotionAfterThreeAgreeingCorrections(t *testing.T) {
	ls, rules := setupLearningStore(t)
	ctx := context.Background()

	// Differently cased and separated spellings of the same source must
	// tally together.
	for _, src := range []string{"EmpNo", "EMP_NO", "emp no"} {
		require.NoError(t, ls.RecordCorrection(ctx, correction(src, "", "EMPLOYEE_ID")))
	}

	created, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.True(t, created)

	rule, err := rules.LookupAliasRule(ctx, "employee", "EMP_NO")
	require.NoError(t, err)
	assert.Equal(t, "EMPLOYEE_ID", rule.Target)
	assert.Equal(t, domain.OriginLearned, rule.Origin)
	assert.Equal(t, 0.95, rule.Confidence)
	assert.False(t, rule.Superseded)
}

func TestNoPromotionBelowMinCorrections(t *testing.T) {
	ls, _ := setupLearningStore(t)
	ctx := context.Background()

	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))

	created, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestNoPromotionBelowAgreement(t *testing.T) {
	ls, _ := setupLearningStore(t)
	ctx := context.Background()

	// 3 of 5 point one way: 0.6 < 0.80.
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMAIL")))
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMAIL")))

	created, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPromotionExactlyAtThreshold(t *testing.T) {
	ls, _ := setupLearningStore(t)
	ctx := context.Background()

	// 4 of 5 is exactly 0.80.
	for i := 0; i < 4; i++ {
		require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
	}
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMAIL")))

	created, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestPromotionIsIdempotent(t *testing.T) {
	ls, _ := setupLearningStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
	}

	created, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPromoteHookFires(t *testing.T) {
	ls, _ := setupLearningStore(t)
	ctx := context.Background()

	var invalidated []string
	ls.OnPromote(func(entity string) { invalidated = append(invalidated, entity) })

	for i := 0; i < 3; i++ {
		require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
	}
	_, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.Equal(t, []string{"employee"}, invalidated)
}

func TestCorrectionRetiresContradictedRule(t *testing.T) {
	ls, rules := setupLearningStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMAIL")))
	}
	_, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)

	// A user now says EmpNo was wrongly mapped to EMAIL.
	require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "EMAIL", "EMPLOYEE_ID")))

	_, err = rules.LookupAliasRule(ctx, "employee", "EmpNo")
	require.Error(t, err)

	// Once enough contradicting corrections agree, the new rule replaces it.
	// The log is append-only, so the new target must reach the agreement
	// share over the whole history: 12 of 15 is exactly 0.80.
	for i := 0; i < 11; i++ {
		require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "EMAIL", "EMPLOYEE_ID")))
	}

	created, err := ls.MaybePromote(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.True(t, created)

	rule, err := rules.LookupAliasRule(ctx, "employee", "EmpNo")
	require.NoError(t, err)
	assert.Equal(t, "EMPLOYEE_ID", rule.Target)
}

func TestSweepPromotesAcrossSources(t *testing.T) {
	ls, rules := setupLearningStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, ls.RecordCorrection(ctx, correction("EmpNo", "", "EMPLOYEE_ID")))
		require.NoError(t, ls.RecordCorrection(ctx, correction("Mail", "", "EMAIL")))
	}

	job := NewJob(ls, 0, nil)
	job.sweep(ctx)

	for alias, target := range map[string]string{"EmpNo": "EMPLOYEE_ID", "Mail": "EMAIL"} {
		rule, err := rules.LookupAliasRule(ctx, "employee", alias)
		require.NoError(t, err)
		assert.Equal(t, target, rule.Target)
	}
}
