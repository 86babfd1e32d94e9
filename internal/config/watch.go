package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay coalesces the burst of events an editor or a
// ConfigMap update produces into one reload.
const DefaultReloadDelay = 250 * time.Millisecond

// Watcher reloads a configuration file when it changes and passes each
// valid result to the registered callbacks. An invalid file is logged and
// the previous configuration stays in effect.
type Watcher struct {
	path    string
	delay   time.Duration
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	callbacks []func(*Config)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher prepares a watcher for path. A zero delay uses
// DefaultReloadDelay.
func NewWatcher(path string, delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("no config file to watch")
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	return &Watcher{
		path:    abs,
		delay:   delay,
		logger:  logger,
		watcher: fw,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// OnChange registers fn to receive every successfully reloaded config.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Start watches the file's directory, so atomic replace-by-rename is seen
// as well as in-place writes.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	go w.loop(ctx)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
	select {
	case <-w.done:
	case <-time.After(time.Second):
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", slog.Any("error", err))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous settings", slog.String("path", w.path), slog.Any("error", err))
		return
	}
	w.logger.Info("config reloaded", slog.String("path", w.path))

	w.mu.Lock()
	callbacks := slices.Clone(w.callbacks)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}
