package embedding

import (
	"context"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	"github.com/fieldmapapp/fieldmap-server/internal/match"
)

// semanticTopK bounds how many targets the stage scores per source field.
// Plenty for the alternatives list and the escalation seed band.
const semanticTopK = 8

// SemanticStage proposes targets by cosine similarity between the source
// field embedding and the schema field index. Confidence is the raw
// similarity; banding into accept / escalate / discard is the orchestrator's
// job.
type SemanticStage struct {
	manager *Manager
	// DiscardFloor drops candidates the escalation band would never see.
	DiscardFloor float64
}

// NewSemanticStage creates the semantic matching stage.
func NewSemanticStage(manager *Manager, discardFloor float64) *SemanticStage {
	return &SemanticStage{manager: manager, DiscardFloor: discardFloor}
}

// Name implements match.Stage.
func (s *SemanticStage) Name() string { return "semantic" }

// Propose implements match.Stage. Provider failures surface as errors so the
// orchestrator can mark the stage unavailable and fall through to fuzzy.
func (s *SemanticStage) Propose(ctx context.Context, req *match.Request) ([]match.Candidate, error) {
	idx, err := s.manager.IndexFor(ctx, req.Schema)
	if err != nil {
		return nil, err
	}

	vecs, err := s.manager.provider.Embed(ctx, []string{SourceText(req.Field.Raw, req.Samples)})
	if err != nil {
		return nil, err
	}

	matches := idx.TopK(vecs[0], semanticTopK, req.Exclude)

	cands := make([]match.Candidate, 0, len(matches))
	for _, mt := range matches {
		if mt.Similarity < s.DiscardFloor {
			continue
		}
		cands = append(cands, match.Candidate{
			Target:     mt.Target,
			Confidence: mt.Similarity,
			Method:     domain.MethodSemantic,
		})
	}
	return cands, nil
}
