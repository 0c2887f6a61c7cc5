package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/fieldmapapp/fieldmap-server/internal/config"
	"github.com/fieldmapapp/fieldmap-server/internal/logger"
	"github.com/fieldmapapp/fieldmap-server/internal/store"
	"github.com/fieldmapapp/fieldmap-server/internal/store/sqlite"
)

// StoreHandle wraps the badger store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the rule and cache store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Store.DataPath, "db")
	db, err := store.New(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Rule store initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}

// CorrectionLogHandle wraps the correction log with shutdown capability.
type CorrectionLogHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *CorrectionLogHandle) Shutdown() error {
	return h.Close()
}

// ProvideCorrectionLog provides the append-only correction log.
func ProvideCorrectionLog(i do.Injector) (*CorrectionLogHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Store.DataPath, "corrections.db")
	db, err := sqlite.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Correction log initialized", "path", dbPath)

	return &CorrectionLogHandle{Store: db}, nil
}
