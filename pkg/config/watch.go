package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/df07/go-scene-raytracer/pkg/log"
)

var logger = log.New("config")

// settleDelay coalesces the burst of events an editor produces on save
const settleDelay = 100 * time.Millisecond

// Watcher reloads a settings file whenever it changes on disk
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching path. The parent directory is watched so
// that editors replacing the file by rename are noticed.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, watcher: w}, nil
}

// Run delivers every successfully reloaded config to onChange until ctx is
// done. A file that fails to load is logged and skipped; the previous
// settings stay in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.watcher.Close()

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settle = time.After(settleDelay)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warningf("watch %s: %v", w.path, err)
		case <-settle:
			settle = nil
			cfg, err := Load(w.path)
			if err != nil {
				logger.Errorf("reload skipped: %v", err)
				continue
			}
			logger.Noticef("reloaded %s", w.path)
			onChange(cfg)
		}
	}
}
