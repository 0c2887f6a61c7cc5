package match

import (
	"context"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
)

const (
	// fuzzySimilarityFloor is the edit-distance similarity below which a
	// fuzzy candidate is noise rather than a typo.
	fuzzySimilarityFloor = 0.6

	// Fuzzy confidences occupy [fuzzyConfFloor, fuzzyConfCeil], strictly
	// below the partial tier so a fuzzy hit never outranks a token match.
	fuzzyConfFloor = 0.70
	fuzzyConfCeil  = 0.84
)

// FuzzyMatcher is the last-resort tier: normalized Levenshtein similarity
// between the source canonical and each target canonical. It has no external
// dependencies, so it is always available.
type FuzzyMatcher struct{}

// NewFuzzyMatcher creates the fallback matcher.
func NewFuzzyMatcher() *FuzzyMatcher {
	return &FuzzyMatcher{}
}

// Name implements Stage.
func (m *FuzzyMatcher) Name() string { return "fuzzy" }

// Propose implements Stage.
func (m *FuzzyMatcher) Propose(_ context.Context, req *Request) ([]Candidate, error) {
	if req.Field.Canonical == "" {
		return nil, nil
	}

	var cands []Candidate
	for i := range req.Schema.Fields {
		target := &req.Schema.Fields[i]
		if req.Exclude[target.Name] {
			continue
		}

		sim := stringSimilarity(req.Field.Canonical, canonicalName(target))
		if sim < fuzzySimilarityFloor {
			continue
		}

		// Rescale [floor, 1] into the fuzzy confidence band.
		conf := fuzzyConfFloor + (fuzzyConfCeil-fuzzyConfFloor)*(sim-fuzzySimilarityFloor)/(1-fuzzySimilarityFloor)
		cands = append(cands, Candidate{Target: target.Name, Confidence: conf, Method: domain.MethodFuzzy})
	}

	SortCandidates(cands)
	return cands, nil
}

func canonicalName(f *domain.SchemaField) string {
	// Target names go through the same normalizer as source names so both
	// sides of the edit distance are in the same alphabet.
	return normalize.Normalize(f.Name).Canonical
}

// stringSimilarity calculates the similarity between two strings (0.0-1.0)
// as 1 - levenshtein/maxLen.
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	distance := levenshteinDistance(a, b)
	maxLen := max(len(a), len(b))

	return 1.0 - float64(distance)/float64(maxLen)
}

// levenshteinDistance calculates the edit distance between two strings.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}
