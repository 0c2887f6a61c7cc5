package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/config"
	"github.com/fieldmapapp/fieldmap-server/internal/learning"
	"github.com/fieldmapapp/fieldmap-server/internal/logger"
)

// ProvideLearningStore provides the active-learning store.
func ProvideLearningStore(i do.Injector) (*learning.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	corrections := do.MustInvoke[*CorrectionLogHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	store := learning.NewStore(corrections.Store, storeHandle.Store, learning.Config{
		MinCorrections:     cfg.Learning.MinCorrections,
		AgreementThreshold: cfg.Learning.AgreementThreshold,
	}, log.Logger)

	store.OnPromote(func(entity string) {
		log.Info("Alias rule set changed", "entity", entity)
	})

	return store, nil
}

// LearningJobHandle wraps the promotion sweep job with lifecycle management.
type LearningJobHandle struct {
	job    *learning.Job
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *LearningJobHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// ProvideLearningJob provides the background promotion sweep. A zero
// interval disables the sweep; promotion still runs on every submitted
// correction.
func ProvideLearningJob(i do.Injector) (*LearningJobHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	store := do.MustInvoke[*learning.Store](i)

	if cfg.Learning.PromoteInterval <= 0 {
		log.Info("Promotion sweep disabled by configuration")
		return &LearningJobHandle{}, nil
	}

	job := learning.NewJob(store, cfg.Learning.PromoteInterval, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go job.Run(ctx)

	log.Info("Promotion sweep started", "interval", cfg.Learning.PromoteInterval)

	return &LearningJobHandle{job: job, cancel: cancel}, nil
}
