// Package match implements the string-based matching tiers of the mapping
// pipeline and the stage contract every tier satisfies. Each tier proposes
// candidates for one source field; acceptance policy lives in the
// orchestrator, not here.
package match

import (
	"context"
	"sort"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
)

// Candidate is one proposed target for a source field.
type Candidate struct {
	Target     string
	Confidence float64
	Method     domain.Method
}

// Request carries everything a stage may need to score one source field.
// Exclude lists targets already claimed by other fields; stages must not
// propose them. Seeds is populated by the orchestrator with ambiguous-band
// semantic candidates before the escalation stage runs.
type Request struct {
	Field   normalize.Field
	Samples []string
	Schema  *domain.TargetSchema
	Exclude map[string]bool
	Seeds   []Candidate
}

// Stage is one ranked matching strategy in the pipeline. Propose returns
// candidates sorted by confidence descending (ties by target name), or an
// empty slice when the stage has nothing to offer. Stages are pure with
// respect to the request; any I/O must honor ctx.
type Stage interface {
	Name() string
	Propose(ctx context.Context, req *Request) ([]Candidate, error)
}

// SortCandidates orders candidates by confidence descending, ties broken by
// target name ascending so results are deterministic.
func SortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Confidence != cands[j].Confidence {
			return cands[i].Confidence > cands[j].Confidence
		}
		return cands[i].Target < cands[j].Target
	})
}

// Thresholds holds the tier acceptance cut-offs. Values come from
// configuration so tuning does not require code changes.
type Thresholds struct {
	// High accepts alias-tier candidates (exact, alias, partial).
	High float64
	// Medium accepts semantic candidates as standalone matches.
	Medium float64
	// LLMFloor is the bottom of the ambiguous band seeding escalation.
	LLMFloor float64
	// Min is the fuzzy fallback floor.
	Min float64
	// LLMAccept is the minimum reasoner confidence to accept.
	LLMAccept float64
}

// DefaultThresholds returns the standard production cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		High:      0.85,
		Medium:    0.70,
		LLMFloor:  0.40,
		Min:       0.70,
		LLMAccept: 0.60,
	}
}

// Accepts reports whether a candidate clears the threshold for its method.
func (t Thresholds) Accepts(c Candidate) bool {
	switch c.Method {
	case domain.MethodExact, domain.MethodAlias, domain.MethodPartial:
		return c.Confidence >= t.High
	case domain.MethodSemantic:
		return c.Confidence >= t.Medium
	case domain.MethodLLM:
		return c.Confidence >= t.LLMAccept
	case domain.MethodFuzzy:
		return c.Confidence >= t.Min
	default:
		return false
	}
}
