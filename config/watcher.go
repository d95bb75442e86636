package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goliatone/go-appshell/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultWatchDebounce = 100 * time.Millisecond

// Merger is the write side of a ConfigService.
type Merger interface {
	MergeConfig(partial map[string]any) error
}

// Watcher reloads a YAML file on change and merges it into target, which
// announces CONFIG_CHANGED.
type Watcher struct {
	loader   FileLoader
	target   Merger
	logger   core.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	reloads int
}

type WatcherOption func(*Watcher)

func WithWatchLogger(logger core.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithDebounce(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		if delay >= 0 {
			w.debounce = delay
		}
	}
}

func NewWatcher(path string, target Merger, options ...WatcherOption) (*Watcher, error) {
	if target == nil {
		return nil, core.BadInputError("config: watcher target is required")
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	// Watch the directory: editors replace files with renames.
	if err := fsw.Add(filepath.Dir(absolute)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(absolute), err)
	}
	w := &Watcher{
		loader:   FileLoader{Path: absolute, Required: true},
		target:   target,
		logger:   glog.Nop(),
		debounce: defaultWatchDebounce,
		watcher:  fsw,
	}
	for _, option := range options {
		if option != nil {
			option(w)
		}
	}
	return w, nil
}

// Run blocks until ctx is done, reloading after each burst of changes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.loader.Path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			core.Log(ctx, w.logger, "error", "config watcher error", map[string]any{"error": err.Error()})
		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

// Reloads reports how many reloads were merged successfully.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) reload(ctx context.Context) {
	raw, err := w.loader.LoadRaw(ctx)
	if err != nil {
		core.Log(ctx, w.logger, "warn", "config reload failed", map[string]any{
			"path":  w.loader.Path,
			"error": err.Error(),
		})
		return
	}
	if err := w.target.MergeConfig(raw); err != nil {
		core.Log(ctx, w.logger, "warn", "config reload rejected", map[string]any{
			"path":  w.loader.Path,
			"error": err.Error(),
		})
		return
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	core.Log(ctx, w.logger, "info", "config reloaded", map[string]any{"path": w.loader.Path})
}
