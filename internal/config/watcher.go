package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the bursts of events editors produce on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the configuration when its YAML file changes and hands the
// new value to the registered callbacks. Used in development only.
type Watcher struct {
	loader   *Loader
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)

	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts watching the file the initial configuration came from.
func NewWatcher(initial *Config, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(initial, logger, DefaultDebounce)
}

func newWatcher(initial *Config, logger *zap.Logger, debounce time.Duration) (*Watcher, error) {
	if initial.ConfigFile == "" {
		return nil, fmt.Errorf("configuration was not loaded from a file")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory: editors often replace the file instead of writing it.
	if err := fsWatcher.Add(filepath.Dir(initial.ConfigFile)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	w := &Watcher{
		loader:   NewLoader(initial.ConfigFile),
		logger:   logger.Named("config"),
		debounce: debounce,
		config:   initial,
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
	}
	go w.watchLoop()

	w.logger.Info("Configuration hot reloading enabled", zap.String("file", initial.ConfigFile))
	return w, nil
}

func (w *Watcher) watchLoop() {
	defer w.watcher.Close()

	target := filepath.Clean(w.loader.Path)
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.Debug("Configuration file changed", zap.String("operation", event.Op.String()))

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// reload keeps the previous configuration when the new one does not load.
func (w *Watcher) reload() {
	next, err := w.loader.Load()
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping the previous one", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.config
	w.config = next
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	if prev.Sync != next.Sync || prev.Shopify.Timeout != next.Shopify.Timeout || prev.Logging.Level != next.Logging.Level {
		w.logger.Info("Configuration reloaded",
			zap.Bool("emptyRemoteFallback", next.Sync.EmptyRemoteFallback),
			zap.Duration("shopifyTimeout", next.Shopify.Timeout),
			zap.String("logLevel", next.Logging.Level),
		)
	}

	for _, cb := range callbacks {
		w.notify(cb, next)
	}
}

func (w *Watcher) notify(cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Configuration callback panicked", zap.Any("panic", r))
		}
	}()
	cb(cfg)
}

// OnChange registers a callback run after every successful reload.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}
