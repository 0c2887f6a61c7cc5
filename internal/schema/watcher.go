package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay batches rapid editor write sequences into one reload.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the registry when schema files change on disk.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher creates a watcher over the registry's schema directory.
func NewWatcher(registry *Registry, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fw.Add(registry.dir); err != nil {
		_ = fw.Close() //nolint:errcheck // Best-effort cleanup on failed setup
		return nil, fmt.Errorf("watch %s: %w", registry.dir, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{registry: registry, watcher: fw, logger: logger}, nil
}

// Run processes file events until ctx is cancelled. A change to any .json
// file triggers one debounced registry reload, which in turn fires the
// registry's invalidation hooks.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("schema file event", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("schema watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.registry.Reload(); err != nil {
				w.logger.Error("schema reload failed", "error", err)
			}
		}
	}
}

// Close stops the underlying file watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
