package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabgate/internal/gateway/kv"
	"github.com/aussiebroadwan/tabgate/internal/gateway/store"
)

// Reaper closes idle connections.
type Reaper interface {
	Reap(idleTimeout time.Duration) int
}

// HousekeepingService runs the idle connection reaper and periodic cleanup
// of expired records in the background.
type HousekeepingService struct {
	Store  store.Store
	KV     kv.Store
	Reaper Reaper
	Logger *slog.Logger

	// Interval paces record cleanup, ReapInterval the reaper.
	Interval     time.Duration
	ReapInterval time.Duration
	IdleTimeout  time.Duration

	Now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService fills zero intervals with defaults: an hour for
// cleanup and a minute for reaping.
func NewHousekeepingService(s store.Store, kvs kv.Store, reaper Reaper, logger *slog.Logger, interval, reapInterval, idleTimeout time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if reapInterval <= 0 {
		reapInterval = time.Minute
	}
	return &HousekeepingService{
		Store:        s,
		KV:           kvs,
		Reaper:       reaper,
		Logger:       logger,
		Interval:     interval,
		ReapInterval: reapInterval,
		IdleTimeout:  idleTimeout,
		Now:          time.Now,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start launches the worker. Call Stop to end it.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "reap_interval", s.ReapInterval, "idle_timeout", s.IdleTimeout)
}

// Stop blocks until the worker has finished any in-progress pass.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	cleanup := time.NewTicker(s.Interval)
	defer cleanup.Stop()
	reap := time.NewTicker(s.ReapInterval)
	defer reap.Stop()

	s.Cleanup()

	for {
		select {
		case <-reap.C:
			s.Reap()
		case <-cleanup.C:
			s.Cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Reap closes connections idle past IdleTimeout. A zero timeout disables it.
func (s *HousekeepingService) Reap() int {
	if s.Reaper == nil || s.IdleTimeout <= 0 {
		return 0
	}
	return s.Reaper.Reap(s.IdleTimeout)
}

// Cleanup drops expired signing keys and, for stores that need it, expired
// KV entries. Each step runs even if an earlier one failed.
func (s *HousekeepingService) Cleanup() {
	ctx := context.Background()
	s.Logger.Debug("starting housekeeping cleanup")

	if sw, ok := s.KV.(kv.Sweeper); ok {
		n := sw.Sweep()
		s.Logger.Debug("swept expired kv entries", "count", n)
	}

	if s.Store != nil {
		n, err := s.Store.SigningKeys().DeleteExpiredSigningKeys(ctx, s.Now())
		if err != nil {
			s.Logger.Error("failed to delete expired signing keys", "error", err)
		} else if n > 0 {
			s.Logger.Info("deleted expired signing keys", "count", n)
		}
	}
}
