package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay is how long the watcher waits for writes to settle.
const DefaultReloadDelay = 500 * time.Millisecond

// ReloadFunc receives a freshly loaded configuration, or the error that
// prevented loading it. A failed load never replaces a running config.
type ReloadFunc func(cfg *Config, err error)

// Watcher reloads configuration when the watched file or directory changes.
type Watcher struct {
	loader  *Loader
	path    string
	delay   time.Duration
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path.
func NewWatcher(loader *Loader, path string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		path:   path,
		delay:  DefaultReloadDelay,
		logger: logger.With().Str("component", "config-watcher").Logger(),
	}
}

// SetDelay overrides the debounce delay.
func (w *Watcher) SetDelay(d time.Duration) {
	w.delay = d
}

// Watch starts watching in the background until ctx is done.
func (w *Watcher) Watch(ctx context.Context, reloadFn ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	info, err := os.Stat(w.path)
	if err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to stat %s: %w", w.path, err)
	}

	// Editors often replace files on save, so a single file is watched
	// through its directory.
	dir := w.path
	if !info.IsDir() {
		dir = filepath.Dir(w.path)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.watcher = watcher

	go w.processEvents(ctx, info.IsDir(), reloadFn)

	w.logger.Info().
		Str("path", w.path).
		Dur("delay", w.delay).
		Msg("Started watching configuration")

	return nil
}

func (w *Watcher) processEvents(ctx context.Context, isDir bool, reloadFn ReloadFunc) {
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event, isDir) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration file changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.delay, func() {
				w.reload(ctx, reloadFn)
			})
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event, isDir bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	if isDir {
		return IsConfigFile(event.Name)
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

func (w *Watcher) reload(ctx context.Context, reloadFn ReloadFunc) {
	if ctx.Err() != nil {
		return
	}

	w.logger.Info().Msg("Reloading configuration...")

	cfg, err := w.loader.Load(ctx, w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload configuration")
		reloadFn(nil, err)
		return
	}

	w.logger.Info().
		Int("actors", len(cfg.Actors)).
		Msg("Configuration reloaded successfully")
	reloadFn(cfg, nil)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
