package providers

import (
	"github.com/samber/do/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/config"
	"github.com/fieldmapapp/fieldmap-server/internal/logger"
	"github.com/fieldmapapp/fieldmap-server/internal/schema"
	"github.com/fieldmapapp/fieldmap-server/internal/search"
)

// SuggestIndexHandle wraps the suggestion index with shutdown capability.
type SuggestIndexHandle struct {
	*search.SuggestIndex
}

// Shutdown implements do.Shutdownable.
func (h *SuggestIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSuggestIndex provides the Bleve suggestion index, feeds it every
// loaded schema, and keeps it current through registry invalidation.
func ProvideSuggestIndex(i do.Injector) (*SuggestIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*schema.Registry](i)

	index, err := search.NewSuggestIndex(search.Options{
		DataPath: cfg.Store.DataPath,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	for _, entity := range registry.List() {
		s, err := registry.Get(entity)
		if err != nil {
			continue
		}
		if err := index.IndexSchema(s); err != nil {
			log.Warn("Failed to index schema for suggestions", "entity", entity, "error", err)
		}
	}

	registry.OnInvalidate(func(entity string) {
		s, err := registry.Get(entity)
		if err != nil {
			// Schema file removed: drop its documents too.
			if rmErr := index.RemoveEntity(entity); rmErr != nil {
				log.Warn("Failed to remove entity from suggestion index", "entity", entity, "error", rmErr)
			}
			return
		}
		if err := index.IndexSchema(s); err != nil {
			log.Warn("Failed to reindex schema for suggestions", "entity", entity, "error", err)
		}
	})

	docCount, _ := index.DocumentCount()
	log.Info("Suggestion index initialized", "documents", docCount)

	return &SuggestIndexHandle{SuggestIndex: index}, nil
}
