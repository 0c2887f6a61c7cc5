// Package mapper orchestrates the matching pipeline: per-field tiered
// scoring fanned out across a worker pool, then a sequential collision pass
// that enforces the one-source-per-target invariant.
package mapper

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/match"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
)

// SchemaSource resolves entity names to target schemas.
type SchemaSource interface {
	Get(entity string) (*domain.TargetSchema, error)
}

// Request is one mapping batch.
type Request struct {
	EntityName   string
	SourceFields []string
	// SampleValues optionally carries a few cell values per source field.
	// Samples improve semantic matching and gate LLM escalation.
	SampleValues map[string][]string
	// AllowSharedTargets disables collision resolution, letting several
	// sources map to the same target.
	AllowSharedTargets bool
}

// Options configures a Mapper.
type Options struct {
	Schemas    SchemaSource
	AliasStore match.AliasStore
	// Semantic is the embedding-backed stage; nil disables the tier.
	Semantic match.Stage
	// Escalation is the reasoner stage; nil disables the tier.
	Escalation match.Stage
	Thresholds match.Thresholds
	// AlternativeCount bounds the runner-up list per mapping (default 3).
	AlternativeCount int
	// Workers bounds the scoring fan-out (default 8).
	Workers int
	Logger  *slog.Logger
}

// Mapper runs mapping batches. Safe for concurrent use; all per-batch state
// is request-scoped.
type Mapper struct {
	schemas    SchemaSource
	aliasStore match.AliasStore
	semantic   match.Stage
	escalation match.Stage
	fuzzy      *match.FuzzyMatcher
	thresholds match.Thresholds
	altCount   int
	workers    int
	logger     *slog.Logger
}

// New creates a Mapper.
func New(opts Options) *Mapper {
	altCount := opts.AlternativeCount
	if altCount <= 0 {
		altCount = 3
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Mapper{
		schemas:    opts.Schemas,
		aliasStore: opts.AliasStore,
		semantic:   opts.Semantic,
		escalation: opts.Escalation,
		fuzzy:      match.NewFuzzyMatcher(),
		thresholds: opts.Thresholds,
		altCount:   altCount,
		workers:    workers,
		logger:     logger,
	}
}

// fieldScore is the scoring outcome for one source field. Candidate lists
// are cached so the collision pass can re-propose without touching providers.
type fieldScore struct {
	source  string
	field   normalize.Field
	samples []string

	alias    []match.Candidate
	semantic []match.Candidate
	llm      []match.Candidate
	fuzzy    []match.Candidate
	fuzzyRan bool

	// displaced collects targets this field tentatively claimed and then
	// lost during collision resolution.
	displaced []match.Candidate
}

// batchState tracks stage health across one batch. The semantic flag is
// shared by the scoring workers: the first provider failure disables the
// tier for every remaining field.
type batchState struct {
	semanticDown    atomic.Bool
	semanticInvoked atomic.Int64
	llmInvoked      atomic.Int64
	llmFailed       atomic.Int64
}

// MapFields maps a batch of source fields onto the entity's target schema.
// Only an unknown entity fails the batch; provider trouble degrades tiers.
func (m *Mapper) MapFields(ctx context.Context, req *Request) (*domain.MapResult, error) {
	schema, err := m.schemas.Get(req.EntityName)
	if err != nil {
		return nil, err
	}

	learned, err := m.snapshotRules(ctx, req.EntityName)
	if err != nil {
		return nil, err
	}
	aliasMatcher := match.NewAliasMatcher(learned)

	result := &domain.MapResult{
		BatchID:       uuid.NewString(),
		EntityName:    schema.EntityName,
		SchemaVersion: schema.Version,
		SemanticStage: domain.StageDisabled,
		LLMStage:      domain.StageDisabled,
	}

	// Blank names never enter the pipeline.
	var sources []string
	for _, raw := range req.SourceFields {
		if strings.TrimSpace(raw) == "" {
			m.logger.Warn("skipping blank source field name", "entity", req.EntityName)
			result.SkippedSources = append(result.SkippedSources, raw)
			continue
		}
		sources = append(sources, raw)
	}

	state := &batchState{}
	scores := m.scoreFields(ctx, aliasMatcher, schema, sources, req.SampleValues, state)

	var mappings []domain.Mapping
	if req.AllowSharedTargets {
		mappings = m.assignShared(scores, schema)
	} else {
		mappings = m.resolveCollisions(scores, schema)
	}
	result.Mappings = mappings

	for i := range mappings {
		if !mappings[i].Mapped() {
			result.UnmappedSources = append(result.UnmappedSources, mappings[i].Source)
		}
	}
	result.UnmappedRequiredTargets = unclaimedRequired(schema, mappings)

	result.SemanticStage = m.semanticStatus(state)
	result.LLMStage = m.llmStatus(state)

	m.logger.Info("mapped batch",
		"batch_id", result.BatchID,
		"entity", result.EntityName,
		"sources", len(sources),
		"unmapped", len(result.UnmappedSources),
		"semantic_stage", result.SemanticStage,
		"llm_stage", result.LLMStage,
	)
	return result, nil
}

func (m *Mapper) snapshotRules(ctx context.Context, entity string) (map[string]domain.AliasRule, error) {
	if m.aliasStore == nil {
		return nil, nil
	}
	return m.aliasStore.SnapshotAliasRules(ctx, entity)
}

// scoreFields runs the tier cascade for every source field across a bounded
// worker pool. Scoring is pure per field; the only shared state is the
// batch-wide semantic health flag.
func (m *Mapper) scoreFields(
	ctx context.Context,
	aliasMatcher *match.AliasMatcher,
	schema *domain.TargetSchema,
	sources []string,
	samples map[string][]string,
	state *batchState,
) []*fieldScore {
	scores := make([]*fieldScore, len(sources))

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := m.workers
	if workers > len(sources) {
		workers = len(sources)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				scores[i] = m.scoreField(ctx, aliasMatcher, schema, sources[i], samples[sources[i]], state)
			}
		}()
	}
	for i := range sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return scores
}

// scoreField walks one field through the cascade, caching every tier's
// candidates along the way.
func (m *Mapper) scoreField(
	ctx context.Context,
	aliasMatcher *match.AliasMatcher,
	schema *domain.TargetSchema,
	source string,
	samples []string,
	state *batchState,
) *fieldScore {
	score := &fieldScore{
		source:  source,
		field:   normalize.Normalize(source),
		samples: samples,
	}
	req := &match.Request{Field: score.field, Samples: samples, Schema: schema}

	score.alias, _ = aliasMatcher.Propose(ctx, req)
	if best, ok := bestCandidate(score.alias, nil); ok && m.thresholds.Accepts(best) {
		return score
	}

	if m.semantic != nil && !state.semanticDown.Load() && ctx.Err() == nil {
		state.semanticInvoked.Add(1)
		cands, err := m.semantic.Propose(ctx, req)
		if err != nil {
			// One provider failure disables the tier for the batch.
			state.semanticDown.Store(true)
			m.logger.Warn("semantic stage unavailable for remainder of batch",
				"source", source,
				"error", err,
			)
		} else {
			score.semantic = cands
		}
	}
	if best, ok := bestCandidate(score.semantic, nil); ok && m.thresholds.Accepts(best) {
		return score
	}

	// Ambiguous semantic band plus samples gates escalation.
	seeds := ambiguousBand(score.semantic, m.thresholds)
	if m.escalation != nil && len(seeds) > 0 && len(samples) > 0 && ctx.Err() == nil {
		state.llmInvoked.Add(1)
		escReq := &match.Request{Field: score.field, Samples: samples, Schema: schema, Seeds: seeds}
		cands, err := m.escalation.Propose(ctx, escReq)
		if err != nil {
			state.llmFailed.Add(1)
			m.logger.Warn("escalation skipped for field", "source", source, "error", err)
		} else {
			score.llm = cands
		}
	}
	if best, ok := bestCandidate(score.llm, nil); ok && m.thresholds.Accepts(best) {
		return score
	}

	score.fuzzy, _ = m.fuzzy.Propose(ctx, req)
	score.fuzzyRan = true
	return score
}

// choose picks the field's best acceptable candidate given the current
// claimed-target set, walking tiers in priority order over the cached lists.
// The fuzzy tier is recomputed lazily when the cascade never reached it
// during scoring; it is pure and local.
func (m *Mapper) choose(score *fieldScore, schema *domain.TargetSchema, exclude map[string]bool) (match.Candidate, bool) {
	for _, tier := range [][]match.Candidate{score.alias, score.semantic, score.llm} {
		if best, ok := bestCandidate(tier, exclude); ok && m.thresholds.Accepts(best) {
			return best, true
		}
	}

	if !score.fuzzyRan {
		req := &match.Request{Field: score.field, Samples: score.samples, Schema: schema}
		score.fuzzy, _ = m.fuzzy.Propose(context.Background(), req)
		score.fuzzyRan = true
	}
	if best, ok := bestCandidate(score.fuzzy, exclude); ok && m.thresholds.Accepts(best) {
		return best, true
	}
	return match.Candidate{}, false
}

// resolveCollisions assigns targets one round at a time. Each contested
// target goes to the candidate with the highest confidence, ties broken by
// source name; losers re-propose against the shrunken target pool. Runs
// sequentially so claimed-target bookkeeping needs no locking.
func (m *Mapper) resolveCollisions(scores []*fieldScore, schema *domain.TargetSchema) []domain.Mapping {
	claimed := make(map[string]bool)
	assigned := make(map[string]match.Candidate) // source -> winning candidate
	unresolved := make([]*fieldScore, 0, len(scores))
	unresolved = append(unresolved, scores...)

	for len(unresolved) > 0 {
		// Tentative choices for this round.
		type claim struct {
			score *fieldScore
			cand  match.Candidate
		}
		byTarget := make(map[string][]claim)
		var next []*fieldScore
		var exhausted []*fieldScore

		for _, sc := range unresolved {
			cand, ok := m.choose(sc, schema, claimed)
			if !ok {
				exhausted = append(exhausted, sc)
				continue
			}
			byTarget[cand.Target] = append(byTarget[cand.Target], claim{score: sc, cand: cand})
		}
		_ = exhausted // terminal; their mappings come out unmapped below

		if len(byTarget) == 0 {
			break
		}

		// Deterministic iteration over contested targets.
		targets := make([]string, 0, len(byTarget))
		for t := range byTarget {
			targets = append(targets, t)
		}
		sort.Strings(targets)

		for _, target := range targets {
			claims := byTarget[target]
			sort.SliceStable(claims, func(i, j int) bool {
				if claims[i].cand.Confidence != claims[j].cand.Confidence {
					return claims[i].cand.Confidence > claims[j].cand.Confidence
				}
				return claims[i].score.source < claims[j].score.source
			})

			winner := claims[0]
			claimed[target] = true
			assigned[winner.score.source] = winner.cand

			for _, loser := range claims[1:] {
				loser.score.displaced = append(loser.score.displaced, loser.cand)
				next = append(next, loser.score)
			}
		}

		unresolved = next
	}

	return m.buildMappings(scores, assigned)
}

// assignShared maps every field to its best candidate without claiming.
func (m *Mapper) assignShared(scores []*fieldScore, schema *domain.TargetSchema) []domain.Mapping {
	assigned := make(map[string]match.Candidate)
	for _, sc := range scores {
		if cand, ok := m.choose(sc, schema, nil); ok {
			assigned[sc.source] = cand
		}
	}
	return m.buildMappings(scores, assigned)
}

// buildMappings emits one Mapping per scored field in input order.
func (m *Mapper) buildMappings(scores []*fieldScore, assigned map[string]match.Candidate) []domain.Mapping {
	mappings := make([]domain.Mapping, 0, len(scores))
	for _, sc := range scores {
		mapping := domain.Mapping{
			Source: sc.source,
			Method: domain.MethodUnmapped,
		}
		if cand, ok := assigned[sc.source]; ok {
			mapping.Target = cand.Target
			mapping.Confidence = clamp01(cand.Confidence)
			mapping.Method = cand.Method
		}
		mapping.Alternatives = m.alternatives(sc, mapping.Target)
		mappings = append(mappings, mapping)
	}
	return mappings
}

// alternatives merges every candidate the field saw, including displaced
// claims, keeping the best confidence per target and dropping the chosen one.
func (m *Mapper) alternatives(sc *fieldScore, chosen string) []domain.Alternative {
	best := make(map[string]float64)
	for _, tier := range [][]match.Candidate{sc.alias, sc.semantic, sc.llm, sc.fuzzy, sc.displaced} {
		for _, c := range tier {
			if c.Target == chosen {
				continue
			}
			if conf, ok := best[c.Target]; !ok || c.Confidence > conf {
				best[c.Target] = c.Confidence
			}
		}
	}
	if len(best) == 0 {
		return nil
	}

	alts := make([]domain.Alternative, 0, len(best))
	for target, conf := range best {
		alts = append(alts, domain.Alternative{Target: target, Confidence: clamp01(conf)})
	}
	sort.SliceStable(alts, func(i, j int) bool {
		if alts[i].Confidence != alts[j].Confidence {
			return alts[i].Confidence > alts[j].Confidence
		}
		return alts[i].Target < alts[j].Target
	})
	if len(alts) > m.altCount {
		alts = alts[:m.altCount]
	}
	return alts
}

func (m *Mapper) semanticStatus(state *batchState) domain.StageStatus {
	switch {
	case m.semantic == nil:
		return domain.StageDisabled
	case state.semanticDown.Load():
		return domain.StageUnavailable
	case state.semanticInvoked.Load() == 0:
		return domain.StageSkipped
	default:
		return domain.StageOK
	}
}

func (m *Mapper) llmStatus(state *batchState) domain.StageStatus {
	invoked := state.llmInvoked.Load()
	switch {
	case m.escalation == nil:
		return domain.StageDisabled
	case invoked == 0:
		return domain.StageSkipped
	case state.llmFailed.Load() == invoked:
		return domain.StageUnavailable
	default:
		return domain.StageOK
	}
}

// bestCandidate returns the first candidate not excluded. Tier lists arrive
// sorted by confidence desc, target asc.
func bestCandidate(cands []match.Candidate, exclude map[string]bool) (match.Candidate, bool) {
	for _, c := range cands {
		if exclude[c.Target] {
			continue
		}
		return c, true
	}
	return match.Candidate{}, false
}

// ambiguousBand returns semantic candidates in [LLMFloor, Medium), which seed
// the escalation stage.
func ambiguousBand(cands []match.Candidate, t match.Thresholds) []match.Candidate {
	var seeds []match.Candidate
	for _, c := range cands {
		if c.Confidence >= t.LLMFloor && c.Confidence < t.Medium {
			seeds = append(seeds, c)
		}
	}
	return seeds
}

// unclaimedRequired lists required schema fields no mapping claimed, in
// schema order.
func unclaimedRequired(schema *domain.TargetSchema, mappings []domain.Mapping) []string {
	claimed := make(map[string]bool, len(mappings))
	for i := range mappings {
		if mappings[i].Mapped() {
			claimed[mappings[i].Target] = true
		}
	}

	var missing []string
	for _, name := range schema.RequiredFields() {
		if !claimed[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
