package learning

import (
	"context"
	"log/slog"
	"time"
)

// Job periodically sweeps the correction log and promotes every (entity,
// source) pair that meets the policy. Corrections submitted through the API
// already trigger a targeted promotion check; the sweep catches pairs whose
// volume arrived before the server last restarted.
type Job struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewJob creates the promotion sweep job.
func NewJob(store *Store, interval time.Duration, logger *slog.Logger) *Job {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{store: store, interval: interval, logger: logger}
}

// Run sweeps on the configured interval until ctx is cancelled. One sweep
// runs immediately on start.
func (j *Job) Run(ctx context.Context) {
	j.sweep(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Debug("promotion job stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Job) sweep(ctx context.Context) {
	pairs, err := j.store.log.DistinctSources(ctx)
	if err != nil {
		j.logger.Warn("promotion sweep failed to list sources", "error", err)
		return
	}

	promoted := 0
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return
		}
		created, err := j.store.MaybePromote(ctx, pair.EntityName, pair.Source)
		if err != nil {
			j.logger.Warn("promotion check failed",
				"entity", pair.EntityName,
				"source", pair.Source,
				"error", err,
			)
			continue
		}
		if created {
			promoted++
		}
	}

	if promoted > 0 {
		j.logger.Info("promotion sweep complete", "pairs", len(pairs), "promoted", promoted)
	}
}
