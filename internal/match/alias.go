package match

import (
	"context"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
)

// Tier confidences for the string-matching stage.
const (
	exactConfidence = 1.00
	aliasConfidence = 0.95

	// Partial matches land in [partialFloor, partialCeil] scaled by the
	// weighted token overlap.
	partialFloor = 0.85
	partialCeil  = 0.90

	// partialMinOverlap is the weighted Jaccard below which token overlap
	// is considered coincidental and no partial candidate is produced.
	partialMinOverlap = 0.5
)

// meaningfulTokens get double weight in the partial-overlap score. A shared
// "id" or "email" token says more about field identity than a shared filler
// word.
//
//nolint:gochecknoglobals // Static scoring table.
var meaningfulTokens = map[string]struct{}{
	"id": {}, "email": {}, "date": {}, "name": {}, "number": {}, "num": {},
	"no": {}, "code": {}, "phone": {}, "address": {}, "amount": {}, "at": {},
	"type": {}, "status": {},
}

// AliasStore exposes the learned alias rules to the matcher. The store
// implementation persists promotions; the matcher only ever reads a
// point-in-time snapshot, so a promotion landing mid-batch never changes
// results within that batch.
type AliasStore interface {
	SnapshotAliasRules(ctx context.Context, entity string) (map[string]domain.AliasRule, error)
}

// AliasMatcher scores source fields against target names, declared aliases,
// learned alias rules, and token overlap. It is the first and cheapest tier.
type AliasMatcher struct {
	learned map[string]domain.AliasRule // canonical alias -> rule
}

// NewAliasMatcher builds a matcher over a snapshot of learned rules.
// The snapshot may be nil when no rules exist for the entity.
func NewAliasMatcher(learned map[string]domain.AliasRule) *AliasMatcher {
	return &AliasMatcher{learned: learned}
}

// Name implements Stage.
func (m *AliasMatcher) Name() string { return "alias" }

// Propose implements Stage. For each unclaimed target it tries, in order:
// exact canonical equality, declared or learned alias, weighted token
// overlap. Only the best tier per target contributes a candidate.
func (m *AliasMatcher) Propose(_ context.Context, req *Request) ([]Candidate, error) {
	if req.Field.Canonical == "" {
		return nil, nil
	}

	var cands []Candidate
	for i := range req.Schema.Fields {
		target := &req.Schema.Fields[i]
		if req.Exclude[target.Name] {
			continue
		}
		if c, ok := m.scoreTarget(req.Field, target); ok {
			cands = append(cands, c)
		}
	}

	SortCandidates(cands)
	return cands, nil
}

// scoreTarget returns the best candidate this stage can offer for one target.
func (m *AliasMatcher) scoreTarget(field normalize.Field, target *domain.SchemaField) (Candidate, bool) {
	targetNorm := normalize.Normalize(target.Name)

	if field.Canonical == targetNorm.Canonical {
		return Candidate{Target: target.Name, Confidence: exactConfidence, Method: domain.MethodExact}, true
	}

	if m.matchesAlias(field, target) {
		return Candidate{Target: target.Name, Confidence: aliasConfidence, Method: domain.MethodAlias}, true
	}

	if overlap := weightedOverlap(field, targetNorm); overlap >= partialMinOverlap {
		conf := partialFloor + (partialCeil-partialFloor)*overlap
		return Candidate{Target: target.Name, Confidence: conf, Method: domain.MethodPartial}, true
	}

	return Candidate{}, false
}

// matchesAlias checks declared schema aliases and learned rules. Comparison
// is canonical on both sides.
func (m *AliasMatcher) matchesAlias(field normalize.Field, target *domain.SchemaField) bool {
	for _, alias := range target.Aliases {
		if normalize.Normalize(alias).Canonical == field.Canonical {
			return true
		}
	}

	if rule, ok := m.learned[field.Canonical]; ok && !rule.Superseded && rule.Target == target.Name {
		return true
	}
	return false
}

// weightedOverlap computes a Jaccard score over the two token sets with
// meaningful tokens counted double. Returns 0 when either set is empty or
// the sets are disjoint.
func weightedOverlap(a normalize.Field, b normalize.Field) float64 {
	if len(a.Tokens) == 0 || len(b.Tokens) == 0 {
		return 0
	}

	var intersection, union float64
	for tok := range a.Tokens {
		w := tokenWeight(tok)
		union += w
		if b.HasToken(tok) {
			intersection += w
		}
	}
	for tok := range b.Tokens {
		if !a.HasToken(tok) {
			union += tokenWeight(tok)
		}
	}

	if intersection == 0 {
		return 0
	}
	return intersection / union
}

func tokenWeight(tok string) float64 {
	if _, ok := meaningfulTokens[tok]; ok {
		return 2
	}
	return 1
}
