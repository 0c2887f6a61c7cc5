package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/normalize"
)

// AppendCorrection writes one correction. The log is append-only; history is
// never rewritten.
func (s *Store) AppendCorrection(ctx context.Context, c *domain.Correction) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	canonical := normalize.Normalize(c.Source).Canonical

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (id, entity_name, source, source_canonical, wrong_target, correct_target, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.EntityName, c.Source, canonical, c.WrongTarget, c.CorrectTarget, c.UserID,
		c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append correction: %w", err)
	}
	return nil
}

// ListCorrections returns every correction for (entity, source) in insertion
// order. Source matching is by canonical form, so "EmpNo" and "EMP_NO" count
// toward the same tally.
func (s *Store) ListCorrections(ctx context.Context, entity, source string) ([]domain.Correction, error) {
	canonical := normalize.Normalize(source).Canonical

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_name, source, wrong_target, correct_target, user_id, created_at
		FROM corrections
		WHERE entity_name = ? AND source_canonical = ?
		ORDER BY created_at, id`,
		entity, canonical,
	)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	var corrections []domain.Correction
	for rows.Next() {
		var c domain.Correction
		var createdAt string
		if err := rows.Scan(&c.ID, &c.EntityName, &c.Source, &c.WrongTarget, &c.CorrectTarget, &c.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		corrections = append(corrections, c)
	}
	return corrections, rows.Err()
}

// CorrectionTally is the per-target vote count for one (entity, source) pair.
type CorrectionTally struct {
	Target string
	Count  int
}

// CorrectionTallies aggregates corrections for (entity, source) by chosen
// target, most votes first, ties by target name for determinism. This is the
// promotion scan: it reads a consistent snapshot of the log.
func (s *Store) CorrectionTallies(ctx context.Context, entity, source string) ([]CorrectionTally, int, error) {
	canonical := normalize.Normalize(source).Canonical

	rows, err := s.db.QueryContext(ctx, `
		SELECT correct_target, COUNT(*) AS votes
		FROM corrections
		WHERE entity_name = ? AND source_canonical = ?
		GROUP BY correct_target
		ORDER BY votes DESC, correct_target`,
		entity, canonical,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("tally corrections: %w", err)
	}
	defer rows.Close()

	var tallies []CorrectionTally
	total := 0
	for rows.Next() {
		var t CorrectionTally
		if err := rows.Scan(&t.Target, &t.Count); err != nil {
			return nil, 0, fmt.Errorf("scan tally: %w", err)
		}
		tallies = append(tallies, t)
		total += t.Count
	}
	return tallies, total, rows.Err()
}

// DistinctSources returns every (entity, source) pair present in the log.
// The periodic promotion job iterates these.
func (s *Store) DistinctSources(ctx context.Context) ([]domain.Correction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity_name, source
		FROM corrections
		ORDER BY entity_name, source`,
	)
	if err != nil {
		return nil, fmt.Errorf("distinct sources: %w", err)
	}
	defer rows.Close()

	var pairs []domain.Correction
	for rows.Next() {
		var c domain.Correction
		if err := rows.Scan(&c.EntityName, &c.Source); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		pairs = append(pairs, c)
	}
	return pairs, rows.Err()
}
