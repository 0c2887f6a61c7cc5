package providers

import (
	"github.com/samber/do/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/config"
	"github.com/fieldmapapp/fieldmap-server/internal/embedding"
	"github.com/fieldmapapp/fieldmap-server/internal/llm"
	"github.com/fieldmapapp/fieldmap-server/internal/logger"
	"github.com/fieldmapapp/fieldmap-server/internal/mapper"
	"github.com/fieldmapapp/fieldmap-server/internal/match"
	"github.com/fieldmapapp/fieldmap-server/internal/schema"
)

// EmbeddingManagerHandle carries the embedding manager; Manager is nil when
// the semantic tier is disabled.
type EmbeddingManagerHandle struct {
	Manager *embedding.Manager
}

// ProvideEmbeddingManager provides the embedding index manager and keeps its
// per-entity indexes current through registry invalidation.
func ProvideEmbeddingManager(i do.Injector) (*EmbeddingManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*schema.Registry](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	if !cfg.Embedding.Enabled || cfg.Embedding.Endpoint == "" {
		log.Info("Semantic tier disabled, no embedding endpoint configured")
		return &EmbeddingManagerHandle{}, nil
	}

	provider := embedding.NewHTTPProvider(embedding.HTTPProviderConfig{
		Endpoint: cfg.Embedding.Endpoint,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		Timeout:  cfg.Embedding.Timeout,
		RPS:      cfg.Embedding.RPS,
	}, log.Logger)

	manager := embedding.NewManager(provider, storeHandle.Store, log.Logger)

	registry.OnInvalidate(func(entity string) {
		ctx, cancel := invalidateContext()
		defer cancel()
		manager.Invalidate(ctx, entity)
	})

	log.Info("Embedding manager initialized",
		"endpoint", cfg.Embedding.Endpoint,
		"model", cfg.Embedding.Model,
	)

	return &EmbeddingManagerHandle{Manager: manager}, nil
}

// ProvideThresholds builds the tier cut-offs from configuration.
func ProvideThresholds(i do.Injector) (match.Thresholds, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return match.Thresholds{
		High:      cfg.Matcher.High,
		Medium:    cfg.Matcher.Medium,
		LLMFloor:  cfg.Matcher.LLMFloor,
		Min:       cfg.Matcher.Min,
		LLMAccept: cfg.Matcher.LLMAccept,
	}, nil
}

// ProvideMapper assembles the mapping pipeline. Either optional tier may be
// absent; the mapper reports those stages as disabled per batch.
func ProvideMapper(i do.Injector) (*mapper.Mapper, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*schema.Registry](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	thresholds := do.MustInvoke[match.Thresholds](i)
	embHandle := do.MustInvoke[*EmbeddingManagerHandle](i)

	var semantic match.Stage
	if embHandle.Manager != nil {
		semantic = embedding.NewSemanticStage(embHandle.Manager, thresholds.LLMFloor)
	}

	var escalation match.Stage
	if cfg.LLM.Enabled && cfg.LLM.Endpoint != "" {
		reasoner := llm.NewHTTPReasoner(llm.HTTPReasonerConfig{
			Endpoint: cfg.LLM.Endpoint,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
			Timeout:  cfg.LLM.Timeout,
			RPS:      cfg.LLM.RPS,
		}, log.Logger)
		escalation = llm.NewStage(reasoner, storeHandle.Store, cfg.LLM.CacheTTL, log.Logger)
		log.Info("LLM escalation tier enabled",
			"endpoint", cfg.LLM.Endpoint,
			"model", cfg.LLM.Model,
		)
	}

	m := mapper.New(mapper.Options{
		Schemas:          registry,
		AliasStore:       storeHandle.Store,
		Semantic:         semantic,
		Escalation:       escalation,
		Thresholds:       thresholds,
		AlternativeCount: cfg.Matcher.AlternativeCount,
		Workers:          cfg.Matcher.Workers,
		Logger:           log.Logger,
	})

	return m, nil
}
