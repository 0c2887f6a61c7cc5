package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
)

func proposeFuzzy(t *testing.T, source string, exclude map[string]bool) []Candidate {
	t.Helper()
	m := NewFuzzyMatcher()
	cands, err := m.Propose(context.Background(), &Request{
		Field:   normalize.Normalize(source),
		Schema:  employeeSchema(),
		Exclude: exclude,
	})
	require.NoError(t, err)
	return cands
}

func TestFuzzyMatcher_CatchesTypo(t *testing.T) {
	cands := proposeFuzzy(t, "FURST_NAME", nil)
	require.NotEmpty(t, cands)
	assert.Equal(t, "FIRST_NAME", cands[0].Target)
	assert.Equal(t, domain.MethodFuzzy, cands[0].Method)
	assert.GreaterOrEqual(t, cands[0].Confidence, 0.70)
	assert.LessOrEqual(t, cands[0].Confidence, 0.84)
}

func TestFuzzyMatcher_ConfidenceStaysInBand(t *testing.T) {
	for _, source := range []string{"emale", "hiredate", "lastnme", "employeeidd"} {
		for _, c := range proposeFuzzy(t, source, nil) {
			assert.GreaterOrEqual(t, c.Confidence, 0.70, "source=%q target=%q", source, c.Target)
			assert.LessOrEqual(t, c.Confidence, 0.84, "source=%q target=%q", source, c.Target)
		}
	}
}

func TestFuzzyMatcher_RejectsDistantStrings(t *testing.T) {
	cands := proposeFuzzy(t, "zzzz", nil)
	assert.Empty(t, cands)
}

func TestFuzzyMatcher_RespectsExclusions(t *testing.T) {
	cands := proposeFuzzy(t, "FURST_NAME", map[string]bool{"FIRST_NAME": true})
	for _, c := range cands {
		assert.NotEqual(t, "FIRST_NAME", c.Target)
	}
}

func TestStringSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, stringSimilarity("email", "email"), 1e-9)
	assert.InDelta(t, 0.0, stringSimilarity("", "email"), 1e-9)

	// One substitution in 5 characters.
	assert.InDelta(t, 0.8, stringSimilarity("email", "emall"), 1e-9)
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"firstname", "furstname", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
