package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"logsentry/internal/metrics"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the store whenever its rules file changes on disk.
type Watcher struct {
	store   *Store
	path    string
	metrics *metrics.Metrics
	logger  *logrus.Logger
	onLoad  func(count int)
}

func NewWatcher(store *Store, path string, m *metrics.Metrics, logger *logrus.Logger) *Watcher {
	return &Watcher{
		store:   store,
		path:    filepath.Clean(path),
		metrics: m,
		logger:  logger,
	}
}

// OnReload registers a callback invoked after every successful reload.
func (w *Watcher) OnReload(fn func(count int)) {
	w.onLoad = fn
}

// Run blocks until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Infof("Watching %s for rule changes", w.path)

	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnf("Rules watcher error: %v", err)
		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	loaded, err := w.store.LoadFile(w.path)
	if err != nil {
		w.metrics.RuleReload(false)
		w.logger.Errorf("Failed to reload rules from %s: %v", w.path, err)
		return
	}
	w.metrics.RuleReload(true)
	w.logger.Infof("Reloaded %d rules from %s", len(loaded), w.path)
	if w.onLoad != nil {
		w.onLoad(len(loaded))
	}
}
