package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/policy"
)

// RulesApplier persists a rule change and makes it live.
type RulesApplier interface {
	Apply(ctx context.Context, partial domain.RuleSet, replace bool) (domain.RuleSet, error)
}

// RulesWatcher reloads a rules file whenever it changes on disk.
type RulesWatcher struct {
	path    string
	applier RulesApplier
	logger  *slog.Logger
	delay   time.Duration

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
}

// NewRulesWatcher watches the directory holding path, so editors that
// replace the file by rename are still seen.
func NewRulesWatcher(path string, applier RulesApplier, logger *slog.Logger, debounce time.Duration) (*RulesWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &RulesWatcher{
		path:    abs,
		applier: applier,
		logger:  logger.With("rules_file", abs),
		delay:   debounce,
		watcher: w,
	}, nil
}

// Load applies the file once.
func (rw *RulesWatcher) Load(ctx context.Context) error {
	rs, replace, err := policy.LoadFile(rw.path)
	if err != nil {
		return err
	}
	applied, err := rw.applier.Apply(ctx, rs, replace)
	if err != nil {
		return fmt.Errorf("apply rules file: %w", err)
	}
	rw.logger.Info("rules file applied", "types", len(applied), "replace", replace)
	return nil
}

// Start watches until ctx ends or Stop is called.
func (rw *RulesWatcher) Start(ctx context.Context) {
	done := make(chan struct{})
	rw.mu.Lock()
	rw.done = done
	rw.mu.Unlock()
	go rw.loop(ctx, done)
}

func (rw *RulesWatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != rw.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			rw.schedule(ctx)
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("rules watcher error", "err", err)
		}
	}
}

// schedule coalesces bursts of writes into one reload.
func (rw *RulesWatcher) schedule(ctx context.Context) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.timer != nil {
		rw.timer.Stop()
	}
	rw.timer = time.AfterFunc(rw.delay, func() {
		if err := rw.Load(ctx); err != nil {
			rw.logger.Error("rules file reload failed, keeping current rules", "err", err)
		}
	})
}

func (rw *RulesWatcher) Stop() error {
	rw.mu.Lock()
	if rw.timer != nil {
		rw.timer.Stop()
	}
	done := rw.done
	rw.mu.Unlock()
	err := rw.watcher.Close()
	if done != nil {
		<-done
	}
	return err
}
