package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultSweepInterval is the default interval between sweep runs.
	DefaultSweepInterval = 30 * time.Second
)

// SweeperConfig holds configuration for the expiry sweeper.
type SweeperConfig struct {
	Interval time.Duration // Interval between sweep runs (default: 30s)
}

// Sweeper periodically ends sessions that have no attached scopes and
// are flagged for immediate expiry or past their TTL. It decouples "a
// session has no more active work" from "a session is being torn down",
// giving sessions with an explicit duration a grace window.
type Sweeper struct {
	manager *Manager
	config  SweeperConfig
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewSweeper creates an expiry sweeper over the registry.
func NewSweeper(manager *Manager, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		manager: manager,
		config:  config,
		logger:  logger,
	}
}

// Start begins the periodic sweep. Non-blocking; the sweep runs in a
// goroutine until Stop is called or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil // Already running
	}

	s.running = true
	s.stopChan = make(chan struct{})

	go s.run(ctx, s.stopChan)

	s.logger.Info("session sweeper started",
		slog.Duration("interval", s.config.Interval))
	return nil
}

// Stop stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopChan)
	s.running = false

	s.logger.Info("session sweeper stopped")
}

// RunOnce executes a single sweep immediately and returns the number of
// sessions ended. Useful for testing and shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	return s.sweep(ctx)
}

// IsRunning reports whether the sweeper is currently running.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context, stopChan chan struct{}) {
	defer func() {
		s.mu.Lock()
		// A restarted sweeper owns a fresh stop channel; only the
		// goroutine for the current generation may clear the flag.
		if s.stopChan == stopChan {
			s.running = false
		}
		s.mu.Unlock()
	}()

	if ended := s.sweep(ctx); ended > 0 {
		s.logger.Info("session sweep completed", slog.Int("ended", ended))
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopChan:
			return
		case <-ticker.C:
			if ended := s.sweep(ctx); ended > 0 {
				s.logger.Info("session sweep completed", slog.Int("ended", ended))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) int {
	now := time.Now()
	ended := 0
	for _, sess := range s.manager.Snapshot() {
		if !sess.ShouldExpire(now) {
			continue
		}
		if err := s.manager.EndSession(ctx, sess); err != nil {
			s.logger.Error("failed to end expired session",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()))
			continue
		}
		ended++
	}
	return ended
}
