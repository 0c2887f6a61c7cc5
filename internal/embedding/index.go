package embedding

import (
	"math"
	"sort"
	"strings"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
)

// Index holds the embedded vectors for one (entity, schema version, model
// version) triple. An Index is immutable after construction; the manager
// replaces whole snapshots so readers never observe a partial rebuild.
type Index struct {
	EntityName    string
	SchemaVersion string
	ModelVersion  string
	Dim           int

	names   []string    // target field names, sorted
	vectors [][]float32 // unit-normalized, parallel to names
}

// Match is one scored target from an index lookup.
type Match struct {
	Target     string
	Similarity float64
}

// NewIndex builds an index from raw field vectors. Vectors are normalized up
// front so queries reduce to a dot product.
func NewIndex(entity, schemaVersion, modelVersion string, vectors map[string][]float32) *Index {
	names := make([]string, 0, len(vectors))
	for name := range vectors {
		names = append(names, name)
	}
	sort.Strings(names)

	idx := &Index{
		EntityName:    entity,
		SchemaVersion: schemaVersion,
		ModelVersion:  modelVersion,
		names:         names,
		vectors:       make([][]float32, len(names)),
	}
	for i, name := range names {
		v := normalizeVector(vectors[name])
		idx.vectors[i] = v
		if idx.Dim == 0 {
			idx.Dim = len(v)
		}
	}
	return idx
}

// Len returns the number of indexed target fields.
func (idx *Index) Len() int { return len(idx.names) }

// TopK returns the k most similar targets to query, excluding any target in
// exclude. Results are sorted by similarity descending, ties broken by target
// name ascending.
func (idx *Index) TopK(query []float32, k int, exclude map[string]bool) []Match {
	if k <= 0 || len(query) == 0 {
		return nil
	}
	q := normalizeVector(query)

	matches := make([]Match, 0, len(idx.names))
	for i, name := range idx.names {
		if exclude[name] {
			continue
		}
		if len(idx.vectors[i]) != len(q) {
			continue
		}
		matches = append(matches, Match{Target: name, Similarity: dot(q, idx.vectors[i])})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Target < matches[j].Target
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// FieldText renders a schema field as the text handed to the embedding
// provider. Name plus display name and description when present, so
// semantically described fields match descriptive source columns.
func FieldText(f *domain.SchemaField) string {
	parts := []string{f.Name}
	if f.DisplayName != "" && f.DisplayName != f.Name {
		parts = append(parts, f.DisplayName)
	}
	if f.Description != "" {
		parts = append(parts, f.Description)
	}
	return strings.Join(parts, ". ")
}

// SourceText renders a source field plus a few sample values as embedding
// input. Samples are capped so a wide CSV cannot blow up the request.
func SourceText(raw string, samples []string) string {
	const maxSamples = 5
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	if len(samples) == 0 {
		return raw
	}
	return raw + ". examples: " + strings.Join(samples, ", ")
}
