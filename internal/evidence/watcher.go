package evidence

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 200 * time.Millisecond

// RulesWatcher reloads a rules file into a Grader when it changes.
// A file that fails to parse is logged and the previous rules stay active.
type RulesWatcher struct {
	path    string
	grader  *Grader
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	// onReload is called after each reload attempt; tests hook it.
	onReload func(error)

	closeOnce sync.Once
	done      chan struct{}
}

// NewRulesWatcher watches path's directory so atomic renames are seen.
func NewRulesWatcher(path string, grader *Grader, logger *zap.Logger) (*RulesWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving rules path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &RulesWatcher{
		path:    abs,
		grader:  grader,
		logger:  logger,
		watcher: w,
		done:    make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is done or Close is called.
func (w *RulesWatcher) Run(ctx context.Context) {
	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			reload = timer.C
		case <-reload:
			reload = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}

func (w *RulesWatcher) reload() {
	rules, err := LoadRules(w.path)
	if err == nil {
		err = w.grader.SetRules(rules)
	}
	if err != nil {
		w.logger.Warn("grading rules reload failed, keeping previous rules",
			zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Info("grading rules reloaded",
			zap.String("path", w.path), zap.Int("types", len(rules.Types)))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops the watcher.
func (w *RulesWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
