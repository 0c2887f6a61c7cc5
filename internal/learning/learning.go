// Package learning closes the feedback loop: user corrections accumulate in
// an append-only log, and recurring agreement promotes a learned alias rule
// so the next batch maps the column at the alias tier.
package learning

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/id"
	"github.com/fieldmapapp/fieldmap-server/internal/store/sqlite"
)

// CorrectionLog is the append-only correction history.
type CorrectionLog interface {
	AppendCorrection(ctx context.Context, c *domain.Correction) error
	CorrectionTallies(ctx context.Context, entity, source string) ([]sqlite.CorrectionTally, int, error)
	DistinctSources(ctx context.Context) ([]domain.Correction, error)
}

// RuleStore holds the promoted alias rules.
type RuleStore interface {
	PromoteAliasRule(ctx context.Context, rule domain.AliasRule) (bool, error)
	SupersedeAliasRule(ctx context.Context, entity, alias, wrongTarget string) (bool, error)
}

// Config holds the promotion policy.
type Config struct {
	// MinCorrections is the minimum log entries for (entity, source) before
	// promotion is considered (default 3).
	MinCorrections int
	// AgreementThreshold is the plurality share required to promote
	// (default 0.80).
	AgreementThreshold float64
}

// learnedRuleConfidence places learned rules in the alias tier.
const learnedRuleConfidence = 0.95

// Store implements active learning over a correction log and a rule store.
type Store struct {
	log    CorrectionLog
	rules  RuleStore
	cfg    Config
	logger *slog.Logger

	mu    sync.RWMutex
	hooks []func(entity string)
}

// NewStore creates a learning store.
func NewStore(log CorrectionLog, rules RuleStore, cfg Config, logger *slog.Logger) *Store {
	if cfg.MinCorrections <= 0 {
		cfg.MinCorrections = 3
	}
	if cfg.AgreementThreshold <= 0 {
		cfg.AgreementThreshold = 0.80
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: log, rules: rules, cfg: cfg, logger: logger}
}

// OnPromote registers a callback fired after a rule promotion, with the
// affected entity name. Used to invalidate derived per-entity state.
func (s *Store) OnPromote(fn func(entity string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// RecordCorrection appends the correction and retires any learned rule the
// correction contradicts. History is never edited; a contradicted rule is
// marked superseded, not deleted.
func (s *Store) RecordCorrection(ctx context.Context, c *domain.Correction) error {
	if c.EntityName == "" || c.Source == "" || c.CorrectTarget == "" {
		return domainerrors.Validation("correction requires entity, source, and correct target")
	}
	if c.ID == "" {
		c.ID = id.MustGenerate("corr")
	}

	if err := s.log.AppendCorrection(ctx, c); err != nil {
		return err
	}

	if c.WrongTarget != "" {
		retired, err := s.rules.SupersedeAliasRule(ctx, c.EntityName, c.Source, c.WrongTarget)
		if err != nil {
			return err
		}
		if retired {
			s.logger.Info("correction retired learned rule",
				"entity", c.EntityName,
				"source", c.Source,
				"wrong_target", c.WrongTarget,
			)
			s.firePromote(c.EntityName)
		}
	}
	return nil
}

// MaybePromote promotes a learned alias rule for (entity, source) when the
// log shows enough agreement: at least MinCorrections entries and the
// plurality target holding at least AgreementThreshold of them. Idempotent;
// re-promoting an installed rule is a no-op and returns false.
func (s *Store) MaybePromote(ctx context.Context, entity, source string) (bool, error) {
	tallies, total, err := s.log.CorrectionTallies(ctx, entity, source)
	if err != nil {
		return false, err
	}
	if total < s.cfg.MinCorrections || len(tallies) == 0 {
		return false, nil
	}

	top := tallies[0]
	share := float64(top.Count) / float64(total)
	if share < s.cfg.AgreementThreshold {
		s.logger.Debug("correction agreement below threshold",
			"entity", entity,
			"source", source,
			"share", share,
		)
		return false, nil
	}

	created, err := s.rules.PromoteAliasRule(ctx, domain.AliasRule{
		EntityName: entity,
		Alias:      source,
		Target:     top.Target,
		Confidence: learnedRuleConfidence,
		Origin:     domain.OriginLearned,
	})
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("promoted learned alias rule",
			"entity", entity,
			"alias", source,
			"target", top.Target,
			"corrections", total,
		)
		s.firePromote(entity)
	}
	return created, nil
}

func (s *Store) firePromote(entity string) {
	s.mu.RLock()
	hooks := make([]func(string), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()

	for _, fn := range hooks {
		fn(entity)
	}
}
