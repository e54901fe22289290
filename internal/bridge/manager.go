package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/voice-bridge-service/internal/metrics"
	"github.com/skypro1111/voice-bridge-service/internal/persona"
	"github.com/skypro1111/voice-bridge-service/internal/protocol"
)

var (
	// ErrCapacity is returned when the concurrent session limit is reached
	ErrCapacity = errors.New("session capacity reached")
	// ErrManagerStopped is returned when starting a session after Stop
	ErrManagerStopped = errors.New("session manager stopped")
)

// Config contains the settings shared by every session
type Config struct {
	// MaxSessions limits concurrent sessions; zero means unlimited
	MaxSessions int
	// ConnectTimeout bounds the upstream dial
	ConnectTimeout time.Duration
	// IdleTimeout stops sessions without downstream activity; zero disables it
	IdleTimeout time.Duration

	TurnDetection protocol.TurnDetection
	Modalities    []string
	Temperature   float64
}

// Manager manages all live call sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	cfg      Config
	dialer   Dialer
	resolver *persona.Resolver
	metrics  *metrics.Metrics
	stopped  bool
	wg       sync.WaitGroup

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a session manager and starts its idle reaper
func NewManager(logger *slog.Logger, cfg Config, dialer Dialer, resolver *persona.Resolver, m *metrics.Metrics) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		cfg:      cfg,
		dialer:   dialer,
		resolver: resolver,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// HasCapacity reports whether another session may be started
func (m *Manager) HasCapacity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.stopped && (m.cfg.MaxSessions <= 0 || len(m.sessions) < m.cfg.MaxSessions)
}

// Start registers a session for the downstream leg accepted on route and
// runs it in the background. The session is removed from the registry once
// both legs are closed.
func (m *Manager) Start(route string, down Downstream) (*Session, error) {
	profile := m.resolver.Resolve(route)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d sessions", ErrCapacity, m.cfg.MaxSessions)
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancelCause(m.ctx)
	now := time.Now()

	session := &Session{
		ID:           id,
		Route:        route,
		Profile:      profile,
		StartTime:    now,
		down:         down,
		dialer:       m.dialer,
		cfg:          m.cfg,
		metrics:      m.metrics,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		state:        StateConnecting,
		lastActivity: now,
		logger: m.logger.With(
			slog.String("session_id", id),
			slog.String("route", route),
			slog.String("persona", profile.Name),
		),
	}

	m.sessions[id] = session
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.RecordSessionCreated(profile.Name)
	session.logger.Info("Created new call session", slog.String("voice", profile.Voice))

	go func() {
		defer m.wg.Done()
		session.Run()
		m.removeSession(id)
	}()

	return session, nil
}

// GetSession retrieves a live session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of live sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns a snapshot of all live sessions (for monitoring)
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

func (m *Manager) removeSession(id string) {
	m.mu.Lock()
	session, exists := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if exists {
		m.logger.Debug("Session removed",
			slog.String("session_id", id),
			slog.Duration("total_duration", time.Since(session.StartTime)),
		)
	}
}

// Stop tears down every session and waits for them to finish or for ctx to expire
func (m *Manager) Stop(ctx context.Context) error {
	m.logger.Info("Stopping session manager...")

	m.mu.Lock()
	m.stopped = true
	for _, session := range m.sessions {
		session.Stop(ErrShutdown)
	}
	m.mu.Unlock()

	// Cancel context to stop cleanup routine
	m.cancel()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("sessions did not finish: %w", ctx.Err())
	}

	<-m.cleanup

	m.logger.Info("Session manager stopped",
		slog.Int("remaining_sessions", m.GetActiveSessionCount()),
	)
	return err
}

// startCleanupRoutine stops sessions that have been idle for too long
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	if m.cfg.IdleTimeout <= 0 {
		<-m.ctx.Done()
		return
	}

	interval := m.cfg.IdleTimeout / 2
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("idle_timeout", m.cfg.IdleTimeout),
		slog.Duration("check_interval", interval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupIdleSessions()
		}
	}
}

// cleanupIdleSessions stops sessions without downstream activity
func (m *Manager) cleanupIdleSessions() {
	now := time.Now()

	m.mu.RLock()
	idle := make([]*Session, 0)
	for _, session := range m.sessions {
		if now.Sub(session.LastActivity()) > m.cfg.IdleTimeout {
			idle = append(idle, session)
		}
	}
	m.mu.RUnlock()

	if len(idle) > 0 {
		m.logger.Info("Stopping idle sessions", slog.Int("idle_count", len(idle)))
		for _, session := range idle {
			session.Stop(ErrIdleTimeout)
		}
	}
}
