package config

import (
	"fmt"
	"path/filepath"

	"github.com/Laisky/zap"
	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// Watcher drives hot reload for a Store. fsnotify gives near-instant
// reload on local filesystems; the cron fallback poll covers network
// mounts where inotify events are unreliable, per the hot-reload
// discussion in original_source/src/server.rs.
type Watcher struct {
	store  *Store
	path   string
	logger *zap.Logger

	fsWatcher *fsnotify.Watcher
	cronJob   *cron.Cron
	stopCh    chan struct{}
}

// NewWatcher builds a Watcher for path. It does not start watching until
// Start is called, which reads the hot_reload settings from the store.
func NewWatcher(store *Store, path string, logger *zap.Logger) *Watcher {
	return &Watcher{store: store, path: path, logger: logger, stopCh: make(chan struct{})}
}

// Start begins watching according to the HotReloadConfig on the store's
// current snapshot. Returns immediately; watching happens in background
// goroutines. Call Stop to release resources.
func (w *Watcher) Start() error {
	hr := w.store.Get().Doc.HotReload
	if !hr.Enabled {
		return nil
	}

	if hr.Watch {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		dir := filepath.Dir(w.path)
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return err
		}
		w.fsWatcher = fw
		go w.runFsWatch()
	}

	if hr.PollIntervalSeconds > 0 {
		c := cron.New(cron.WithSeconds())
		spec := fmt.Sprintf("@every %ds", hr.PollIntervalSeconds)
		_, err := c.AddFunc(spec, w.reload)
		if err != nil {
			return err
		}
		w.cronJob = c
		c.Start()
	}

	return nil
}

func (w *Watcher) runFsWatch() {
	for {
		select {
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watcher error", zap.Error(err))
			}
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	if err := w.store.ReloadFromFile(w.path); err != nil {
		if w.logger != nil {
			w.logger.Error("config reload failed", zap.String("path", w.path), zap.Error(err))
		}
		return
	}
	if w.logger != nil {
		w.logger.Info("config reloaded", zap.String("path", w.path))
	}
}

// Stop releases the watcher's resources.
func (w *Watcher) Stop() {
	close(w.stopCh)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
	if w.cronJob != nil {
		w.cronJob.Stop()
	}
}
