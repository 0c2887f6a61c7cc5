package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/id"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
)

// Key layout:
//
//	aliasrule:{entity}:{id}              -> AliasRule JSON
//	aliasrule:idx:active:{entity}:{can}  -> rule ID of the active rule for
//	                                        that canonical alias
//
// One active rule per (entity, canonical alias). Promotion never deletes:
// a contradicted rule is marked Superseded and the index repointed.
const (
	aliasRulePrefix      = "aliasrule:"
	aliasActiveIdxPrefix = "aliasrule:idx:active:"
)

func aliasRuleKey(entity, ruleID string) string {
	return aliasRulePrefix + entity + ":" + ruleID
}

func aliasActiveKey(entity, canonical string) string {
	return aliasActiveIdxPrefix + entity + ":" + canonical
}

// LookupAliasRule returns the active rule for the canonical form of alias
// within entity, or errors.ErrNotFound.
func (s *Store) LookupAliasRule(ctx context.Context, entity, alias string) (*domain.AliasRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canonical := normalize.Normalize(alias).Canonical
	var rule *domain.AliasRule

	err := s.db.View(func(txn *badger.Txn) error {
		ref, err := getJSON[string](txn, aliasActiveKey(entity, canonical))
		if err != nil {
			return err
		}
		rule, err = getJSON[domain.AliasRule](txn, aliasRuleKey(entity, *ref))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListAliasRules returns every rule for an entity, superseded ones included,
// in key order.
func (s *Store) ListAliasRules(ctx context.Context, entity string) ([]domain.AliasRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rules []domain.AliasRule
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, aliasRulePrefix+entity+":", func(_ string, r *domain.AliasRule) bool {
			rules = append(rules, *r)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// SnapshotAliasRules returns the active rules for an entity keyed by
// canonical alias. The map is a point-in-time copy safe to read without
// further store access.
func (s *Store) SnapshotAliasRules(ctx context.Context, entity string) (map[string]domain.AliasRule, error) {
	rules, err := s.ListAliasRules(ctx, entity)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]domain.AliasRule)
	for _, r := range rules {
		if r.Superseded {
			continue
		}
		snapshot[normalize.Normalize(r.Alias).Canonical] = r
	}
	return snapshot, nil
}

// PromoteAliasRule installs rule as the active rule for its alias.
// Idempotent: promoting an alias that already points at the same target is a
// no-op and returns false. A conflicting active rule is marked superseded,
// never deleted.
func (s *Store) PromoteAliasRule(ctx context.Context, rule domain.AliasRule) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if rule.EntityName == "" || rule.Alias == "" || rule.Target == "" {
		return false, domainerrors.Validation("alias rule requires entity, alias, and target")
	}

	canonical := normalize.Normalize(rule.Alias).Canonical
	if canonical == "" {
		return false, domainerrors.Validation("alias normalizes to empty string")
	}

	if rule.ID == "" {
		rule.ID = id.MustGenerate("rule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		activeKey := aliasActiveKey(rule.EntityName, canonical)

		ref, err := getJSON[string](txn, activeKey)
		switch {
		case err == nil:
			current, err := getJSON[domain.AliasRule](txn, aliasRuleKey(rule.EntityName, *ref))
			if err != nil {
				return err
			}
			if current.Target == rule.Target {
				// Already promoted.
				return nil
			}
			// Contradicted: retire the old rule, install the new one.
			current.Superseded = true
			if err := putJSON(txn, aliasRuleKey(rule.EntityName, current.ID), current); err != nil {
				return err
			}
		case domainerrors.Is(err, domainerrors.ErrNotFound):
			// First rule for this alias.
		default:
			return err
		}

		if err := putJSON(txn, aliasRuleKey(rule.EntityName, rule.ID), &rule); err != nil {
			return err
		}
		refVal := rule.ID
		if err := putJSON(txn, activeKey, &refVal); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("promote alias rule: %w", err)
	}
	return created, nil
}

// SupersedeAliasRule retires the active rule for an alias when its target
// matches wrongTarget. Returns true when a rule was retired. Used by the
// learning store when a correction contradicts a learned rule.
func (s *Store) SupersedeAliasRule(ctx context.Context, entity, alias, wrongTarget string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	canonical := normalize.Normalize(alias).Canonical
	if canonical == "" {
		return false, nil
	}

	retired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		activeKey := aliasActiveKey(entity, canonical)

		ref, err := getJSON[string](txn, activeKey)
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		rule, err := getJSON[domain.AliasRule](txn, aliasRuleKey(entity, *ref))
		if err != nil {
			return err
		}
		if rule.Superseded || rule.Target != wrongTarget {
			return nil
		}

		rule.Superseded = true
		if err := putJSON(txn, aliasRuleKey(entity, rule.ID), rule); err != nil {
			return err
		}
		if err := txn.Delete([]byte(activeKey)); err != nil {
			return err
		}
		retired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("supersede alias rule: %w", err)
	}
	return retired, nil
}
