package templatesource

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/metrics"
)

// Watcher reloads a Holder when the template file changes on disk.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	holder    *Holder
	logger    *slog.Logger
	path      string

	debounceDelay time.Duration

	mu      sync.Mutex
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherConfig configures the template watcher.
type WatcherConfig struct {
	Holder *Holder
	Path   string
	Logger *slog.Logger

	// DebounceDelay defaults to 200ms.
	DebounceDelay time.Duration
}

// NewWatcher starts watching the directory containing cfg.Path. Editors
// often replace files by rename, so the parent directory is watched and
// events are filtered by file name.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Holder == nil {
		return nil, fmt.Errorf("holder is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %s: %w", cfg.Path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", absPath, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.DebounceDelay
	if delay == 0 {
		delay = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsWatcher:     fsWatcher,
		holder:        cfg.Holder,
		logger:        logger,
		path:          absPath,
		debounceDelay: delay,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	logger.Debug("watching template", "path", absPath)
	return w, nil
}

// Close stops the watcher and waits for its goroutine.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("template watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	tmpl, err := w.holder.Reload(w.ctx)
	metrics.TemplateReloads.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		w.logger.Error("template reload failed, keeping previous version",
			"path", w.path,
			"error", err,
		)
		return
	}
	w.logger.Info("template reloaded", "path", w.path, "version", tmpl.Version)
}
