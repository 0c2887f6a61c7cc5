package domain

import "time"

// Correction is an append-only record of a human overriding a suggested
// mapping. Corrections are never edited or deleted; the learning store scans
// them to promote recurring agreements into alias rules.
type Correction struct {
	ID            string    `json:"id"`
	EntityName    string    `json:"entity_name"`
	Source        string    `json:"source"`
	WrongTarget   string    `json:"wrong_target,omitempty"` // Empty when the field was unmapped
	CorrectTarget string    `json:"correct_target"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// RuleOrigin distinguishes operator-declared alias rules from learned ones.
type RuleOrigin string

// Alias rule origins.
const (
	OriginManual  RuleOrigin = "manual"
	OriginLearned RuleOrigin = "learned"
)

// AliasRule maps a source alias to a target field within one entity.
// Promotion is monotonic: rules are only added, never removed. A rule that
// later corrections contradict is marked Superseded instead of deleted.
type AliasRule struct {
	ID         string     `json:"id"`
	EntityName string     `json:"entity_name"`
	Target     string     `json:"target"`
	Alias      string     `json:"alias"`
	Confidence float64    `json:"confidence"`
	Origin     RuleOrigin `json:"origin"`
	Superseded bool       `json:"superseded"`
	CreatedAt  time.Time  `json:"created_at"`
}
