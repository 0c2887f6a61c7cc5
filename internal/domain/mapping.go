// Package domain defines the core types for the field-mapping engine:
// target schemas, mappings, corrections, and alias rules.
package domain

// Method identifies which matching tier produced a mapping.
type Method string

// Matching methods, ordered roughly by trust.
const (
	MethodExact    Method = "exact"
	MethodAlias    Method = "alias"
	MethodPartial  Method = "partial"
	MethodSemantic Method = "semantic"
	MethodFuzzy    Method = "fuzzy"
	MethodLLM      Method = "llm"
	MethodManual   Method = "manual"
	MethodUnmapped Method = "unmapped"
)

// Alternative is a runner-up target with its confidence.
type Alternative struct {
	Target     string  `json:"target"`
	Confidence float64 `json:"confidence"`
}

// Mapping is the decision for one source field. Produced fresh per request
// and never mutated afterwards; a correction creates a new Mapping, it does
// not edit the old one.
//
// Target is empty when the field could not be mapped (Method == unmapped).
// Alternatives holds the top runner-ups sorted by confidence descending and
// never contains the chosen target.
type Mapping struct {
	Source       string        `json:"source"`
	Target       string        `json:"target,omitempty"`
	Confidence   float64       `json:"confidence"`
	Method       Method        `json:"method"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Mapped reports whether the field resolved to a target.
func (m *Mapping) Mapped() bool {
	return m.Target != "" && m.Method != MethodUnmapped
}

// StageStatus reports whether an optional pipeline stage ran for a batch.
type StageStatus string

// Stage statuses surfaced in batch metadata so callers can tell
// "low confidence" apart from "stage unavailable".
const (
	StageOK          StageStatus = "ok"
	StageUnavailable StageStatus = "unavailable"
	StageSkipped     StageStatus = "skipped"
	StageDisabled    StageStatus = "disabled"
)

// MapResult is the outcome of mapping one batch of source fields.
type MapResult struct {
	BatchID string `json:"batch_id"`

	EntityName    string `json:"entity_name"`
	SchemaVersion string `json:"schema_version"`

	Mappings []Mapping `json:"mappings"`

	// UnmappedSources are valid source fields that ended in the unmapped
	// terminal state. SkippedSources are inputs rejected before the pipeline
	// ran (empty or blank names).
	UnmappedSources []string `json:"unmapped_sources"`
	SkippedSources  []string `json:"skipped_sources,omitempty"`

	// UnmappedRequiredTargets lists required schema fields no source claimed.
	UnmappedRequiredTargets []string `json:"unmapped_required_targets"`

	SemanticStage StageStatus `json:"semantic_stage"`
	LLMStage      StageStatus `json:"llm_stage"`
}
