package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads the configuration file so timeout tunables can change
// without a restart. A reload that fails validation is logged and dropped;
// the previous configuration stays in effect.
type Watcher struct {
	path     string
	logger   *zap.Logger
	onReload func(*Config)

	// debounce collapses the editor write bursts fsnotify reports.
	debounce time.Duration
}

// NewWatcher creates a watcher for the config file at path. onReload is
// invoked with each successfully loaded configuration.
func NewWatcher(path string, logger *zap.Logger, onReload func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		logger:   logger,
		onReload: onReload,
		debounce: 250 * time.Millisecond,
	}
}

// Start watches until ctx is done. It watches the parent directory rather
// than the file itself so atomic-rename saves keep working.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("configuration reloaded", zap.String("path", w.path))
	w.onReload(cfg)
}
