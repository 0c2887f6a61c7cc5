package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/config"
	"github.com/fieldmapapp/fieldmap-server/internal/logger"
	"github.com/fieldmapapp/fieldmap-server/internal/schema"
)

// ProvideRegistry provides the target schema registry.
func ProvideRegistry(i do.Injector) (*schema.Registry, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	registry, err := schema.NewRegistry(cfg.Schema.Dir, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Schema registry loaded",
		"dir", cfg.Schema.Dir,
		"entities", len(registry.List()),
	)

	return registry, nil
}

// SchemaWatcherHandle wraps the schema file watcher with lifecycle management.
type SchemaWatcherHandle struct {
	*schema.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SchemaWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Close()
}

// ProvideSchemaWatcher provides the fsnotify watcher over the schema
// directory. Disabled by configuration it returns an empty handle.
func ProvideSchemaWatcher(i do.Injector) (*SchemaWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	registry := do.MustInvoke[*schema.Registry](i)

	if !cfg.Schema.Watch {
		log.Info("Schema watching disabled by configuration")
		return &SchemaWatcherHandle{}, nil
	}

	w, err := schema.NewWatcher(registry, log.Logger)
	if err != nil {
		// Non-fatal: schemas still load, they just need a restart to change.
		log.Warn("Schema watcher unavailable", "error", err)
		return &SchemaWatcherHandle{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	log.Info("Schema watcher started", "dir", cfg.Schema.Dir)

	return &SchemaWatcherHandle{Watcher: w, cancel: cancel}, nil
}
