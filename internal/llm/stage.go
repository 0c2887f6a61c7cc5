package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldmapapp/fieldmap-server/internal/domain"
	domainerrors "github.com/fieldmapapp/fieldmap-server/internal/errors"
	"github.com/fieldmapapp/fieldmap-server/internal/match"
	"github.com/fieldmapapp/fieldmap-server/internal/store"
)

// VerdictCache is the subset of the badger store the stage needs.
type VerdictCache interface {
	GetLLMVerdict(ctx context.Context, entity, sourceText string) (*store.LLMVerdict, error)
	PutLLMVerdict(ctx context.Context, entity, sourceText string, verdict store.LLMVerdict, ttl time.Duration) error
}

// Stage escalates ambiguous source fields to the reasoner. Candidates come
// from the seeds the orchestrator collected out of the semantic ambiguous
// band; when no seeds exist the whole schema is offered.
type Stage struct {
	reasoner Reasoner
	cache    VerdictCache
	ttl      time.Duration
	logger   *slog.Logger
}

// NewStage creates the escalation stage. ttl bounds verdict cache lifetime.
func NewStage(reasoner Reasoner, cache VerdictCache, ttl time.Duration, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{reasoner: reasoner, cache: cache, ttl: ttl, logger: logger}
}

// Name implements match.Stage.
func (s *Stage) Name() string { return "llm" }

// Propose implements match.Stage. A cached verdict short-circuits the
// provider call; declines are cached too so a hopeless column is not retried
// every upload.
func (s *Stage) Propose(ctx context.Context, req *match.Request) ([]match.Candidate, error) {
	cacheKey := s.cacheKey(req)

	if s.cache != nil {
		verdict, err := s.cache.GetLLMVerdict(ctx, req.Schema.EntityName, cacheKey)
		if err == nil {
			return s.verdictCandidates(req, verdict.TargetField, verdict.Confidence), nil
		}
		if !domainerrors.Is(err, domainerrors.ErrNotFound) {
			s.logger.Warn("verdict cache read failed", "source", req.Field.Raw, "error", err)
		}
	}

	answer, err := s.reasoner.Decide(ctx, Question{
		Entity:     req.Schema.EntityName,
		Source:     req.Field.Raw,
		Samples:    req.Samples,
		Candidates: s.candidateFields(req),
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		verdict := store.LLMVerdict{
			TargetField: answer.Target,
			Confidence:  answer.Confidence,
			Reasoning:   answer.Reasoning,
		}
		if err := s.cache.PutLLMVerdict(ctx, req.Schema.EntityName, cacheKey, verdict, s.ttl); err != nil {
			s.logger.Warn("verdict cache write failed", "source", req.Field.Raw, "error", err)
		}
	}

	return s.verdictCandidates(req, answer.Target, answer.Confidence), nil
}

// cacheKey ties the verdict to the source column, schema version, and model.
// A schema edit or model upgrade must never serve an old verdict.
func (s *Stage) cacheKey(req *match.Request) string {
	return req.Field.Raw + "\x00" + req.Schema.Version + "\x00" + s.reasoner.ModelVersion()
}

// candidateFields converts seeds to reasoner candidates, falling back to the
// full schema minus claimed targets when the ambiguous band was empty.
func (s *Stage) candidateFields(req *match.Request) []CandidateField {
	if len(req.Seeds) > 0 {
		cands := make([]CandidateField, 0, len(req.Seeds))
		for _, seed := range req.Seeds {
			if req.Exclude[seed.Target] {
				continue
			}
			f := req.Schema.Field(seed.Target)
			if f == nil {
				continue
			}
			cands = append(cands, CandidateField{
				Name:        f.Name,
				Description: f.Description,
				Type:        string(f.Type),
			})
		}
		if len(cands) > 0 {
			return cands
		}
	}

	cands := make([]CandidateField, 0, len(req.Schema.Fields))
	for i := range req.Schema.Fields {
		f := &req.Schema.Fields[i]
		if req.Exclude[f.Name] {
			continue
		}
		cands = append(cands, CandidateField{
			Name:        f.Name,
			Description: f.Description,
			Type:        string(f.Type),
		})
	}
	return cands
}

func (s *Stage) verdictCandidates(req *match.Request, target string, confidence float64) []match.Candidate {
	if target == "" || req.Exclude[target] {
		return nil
	}
	return []match.Candidate{{
		Target:     target,
		Confidence: confidence,
		Method:     domain.MethodLLM,
	}}
}
