// Package di provides dependency injection configuration for the FieldMap server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/config"
	"github.com/fieldmapapp/fieldmap-server/internal/di/providers"
	"github.com/fieldmapapp/fieldmap-server/internal/learning"
	"github.com/fieldmapapp/fieldmap-server/internal/logger"
	"github.com/fieldmapapp/fieldmap-server/internal/mapper"
	"github.com/fieldmapapp/fieldmap-server/internal/match"
	"github.com/fieldmapapp/fieldmap-server/internal/schema"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Persistence layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideCorrectionLog)

	// Schema layer
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideSchemaWatcher)

	// Suggestion index
	do.Provide(injector, providers.ProvideSuggestIndex)

	// Matching pipeline
	do.Provide(injector, providers.ProvideEmbeddingManager)
	do.Provide(injector, providers.ProvideThresholds)
	do.Provide(injector, providers.ProvideMapper)

	// Active learning
	do.Provide(injector, providers.ProvideLearningStore)
	do.Provide(injector, providers.ProvideLearningJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns once the server is running.
// This triggers lazy initialization of every provider in dependency order.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.CorrectionLogHandle](injector)
	_ = do.MustInvoke[*schema.Registry](injector)
	_ = do.MustInvoke[*providers.SchemaWatcherHandle](injector)
	_ = do.MustInvoke[*providers.SuggestIndexHandle](injector)
	_ = do.MustInvoke[*providers.EmbeddingManagerHandle](injector)
	_ = do.MustInvoke[match.Thresholds](injector)
	_ = do.MustInvoke[*mapper.Mapper](injector)
	_ = do.MustInvoke[*learning.Store](injector)
	_ = do.MustInvoke[*providers.LearningJobHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
