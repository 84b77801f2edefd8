// Package bot ties the conversation engine to the Telegram transport: the
// service lifecycle, update handlers, broadcast fan-out and the admin surface.
package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	coreconfig "merchbot/core/config"
	"merchbot/core/logger"
	"merchbot/internal/catalog"
	"merchbot/internal/session"
)

// State is the lifecycle phase of the service.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	// StateFailed is a sink reached when client construction keeps failing.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// transportClient is the running poller connection. The real implementation
// wraps tele.Bot; tests substitute a fake.
type transportClient interface {
	Start()
	Stop()
}

// clientFactory builds a fresh transport client. Each call performs the
// initial API handshake and may fail on network trouble.
type clientFactory func(ctx context.Context) (transportClient, error)

// Status is a read-only projection of the service for the admin surface.
type Status struct {
	State      string
	Running    bool
	RetryCount int
	CacheSize  int
	CacheAge   time.Duration
	Sessions   int
}

// Service owns process-wide bot state and the launch/stop/restart logic.
type Service struct {
	cfg      *coreconfig.Config
	cache    *catalog.Cache
	sessions *session.Store

	newClient clientFactory

	mu         sync.Mutex
	state      State
	ready      bool
	retryCount int
	client     transportClient
}

// NewService builds an unlaunched service. newClient is invoked on every
// launch attempt, so a restart always gets a cold client.
func NewService(cfg *coreconfig.Config, cache *catalog.Cache, sessions *session.Store, newClient clientFactory) *Service {
	return &Service{
		cfg:       cfg,
		cache:     cache,
		sessions:  sessions,
		newClient: newClient,
		state:     StateUninitialized,
	}
}

// Initialize validates the credentials the bot cannot start without. It
// never returns an error: on failure the cause is logged, the service stays
// uninitialized and Ready reports false.
func (s *Service) Initialize(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initializeLocked(ctx)
}

func (s *Service) initializeLocked(ctx context.Context) {
	if err := coreconfig.ValidateCredentials(s.cfg); err != nil {
		logger.Error(ctx, "service", "initialize",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		s.state = StateUninitialized
		s.ready = false
		return
	}
	s.state = StateInitialized
	s.ready = true
	logger.Info(ctx, "service", "initialize", slog.String("status", "ok"))
}

// Ready reports whether Initialize succeeded. Callers check this before
// Launch instead of relying on an Initialize error.
func (s *Service) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Launch connects the transport and starts the poller. Calling it while
// already running succeeds immediately and changes nothing. From an
// uninitialized or failed state it re-initializes once first. Connection
// attempts are bounded with a linearly growing, capped delay between them;
// ctx cancellation aborts the wait.
func (s *Service) Launch(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return true
	}
	if s.state == StateUninitialized || s.state == StateFailed {
		s.initializeLocked(ctx)
	}
	if !s.ready {
		return false
	}

	maxAttempts := s.cfg.Launch.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := time.Duration(s.cfg.Launch.BackoffSec) * time.Second
	maxDelay := time.Duration(s.cfg.Launch.MaxDelaySec) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * backoff
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				logger.Warn(ctx, "service", "launch",
					slog.String("status", "cancelled"),
					slog.Int("attempt", attempt),
				)
				return false
			}
		}

		client, err := s.newClient(ctx)
		if err != nil {
			lastErr = err
			s.retryCount = attempt
			logger.Warn(ctx, "service", "launch.attempt",
				slog.Int("attempt", attempt),
				slog.Int("max", maxAttempts),
				slog.String("err", err.Error()),
			)
			continue
		}

		s.client = client
		s.state = StateRunning
		go client.Start()
		logger.Info(ctx, "service", "launch",
			slog.String("status", "ok"),
			slog.Int("attempt", attempt),
		)
		return true
	}

	s.state = StateFailed
	logger.Error(ctx, "service", "launch",
		slog.String("status", "fail"),
		slog.Int("attempts", maxAttempts),
		slog.String("err", lastErr.Error()),
	)
	return false
}

// Stop halts the poller. It is a no-op unless running; close problems are
// logged and swallowed.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.state != StateRunning {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn(ctx, "service", "stop",
					slog.String("status", "close_error"),
					slog.Any("err", r),
				)
			}
		}()
		s.client.Stop()
	}()
	s.state = StateStopped
	logger.Info(ctx, "service", "stop", slog.String("status", "ok"))
}

// Restart performs a cold rebuild: stop, discard the client, reset retry
// counters, re-initialize and launch again.
func (s *Service) Restart(ctx context.Context) bool {
	s.mu.Lock()
	s.stopLocked(ctx)
	s.client = nil
	s.retryCount = 0
	s.state = StateUninitialized
	s.ready = false
	s.mu.Unlock()

	logger.Info(ctx, "service", "restart")
	return s.Launch(ctx)
}

// Status returns a point-in-time projection for the admin /status command.
func (s *Service) Status() Status {
	s.mu.Lock()
	state := s.state
	retries := s.retryCount
	s.mu.Unlock()

	st := Status{
		State:      state.String(),
		Running:    state == StateRunning,
		RetryCount: retries,
	}
	if s.cache != nil {
		st.CacheSize = s.cache.Size()
		st.CacheAge = s.cache.Age()
	}
	if s.sessions != nil {
		st.Sessions = s.sessions.Len()
	}
	return st
}
