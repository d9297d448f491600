package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Holder provides thread-safe access to configuration with hot reload
// support. The log level of loggers built with Logger follows reloads.
type Holder struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	logger   *slog.Logger
	level    *slog.LevelVar
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder creates a new config holder and loads the initial configuration.
func NewHolder(path string, logger *slog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Holder{
		config: cfg,
		path:   absPath,
		logger: logger,
		level:  new(slog.LevelVar),
		stopCh: make(chan struct{}),
	}
	level, _ := ParseLevel(cfg.Log.Level)
	h.level.Set(level)
	return h, nil
}

// Get returns the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Level returns the log level of the current configuration.
func (h *Holder) Level() slog.Leveler { return h.level }

// Reload reloads the configuration from disk. The old configuration is
// kept when loading fails.
func (h *Holder) Reload() error {
	h.logger.Info("anansi: reloading configuration", slog.String("path", h.path))

	newCfg, err := Load(h.path)
	if err != nil {
		h.logger.Error("anansi: config reload failed, keeping old config", slog.Any("error", err))
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.config
	h.config = newCfg
	callbacks := append([]func(*Config){}, h.onChange...)
	h.mu.Unlock()

	h.logChanges(oldCfg, newCfg)
	level, _ := ParseLevel(newCfg.Log.Level)
	h.level.Set(level)

	for _, fn := range callbacks {
		fn(newCfg)
	}
	h.logger.Info("anansi: configuration reloaded")
	return nil
}

// OnChange registers a callback to be called when config changes.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the config file for changes.
func (h *Holder) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	// Watch the directory; editors save atomically by renaming.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go h.watchLoop()

	h.logger.Info("anansi: watching config file", slog.String("path", h.path))
	return nil
}

// Stop stops watching for file changes. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	filename := filepath.Base(h.path)
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug("anansi: config file changed",
					slog.String("event", event.Op.String()),
					slog.String("file", event.Name),
				)
				if err := h.Reload(); err != nil {
					h.logger.Error("anansi: file watch reload failed", slog.Any("error", err))
				}
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error("anansi: file watcher error", slog.Any("error", err))
		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) logChanges(old, new *Config) {
	if old.Log.Level != new.Log.Level {
		h.logger.Info("anansi: log level changed", slog.String("old", old.Log.Level), slog.String("new", new.Log.Level))
	}
	if old.Cache.TTL != new.Cache.TTL {
		h.logger.Info("anansi: cache ttl changed", slog.Duration("old", old.Cache.TTL), slog.Duration("new", new.Cache.TTL))
	}
	if old.Postgres != new.Postgres {
		h.logger.Warn("anansi: postgres settings changed, reopen the store to apply them")
	}
}
