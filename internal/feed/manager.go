package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrManagerClosed is returned by Activate after Close.
var ErrManagerClosed = errors.New("manager closed")

// SessionFactory builds the session for one symbol.
type SessionFactory func(symbol string) *Session

// Manager runs one independent session per active symbol.
type Manager struct {
	factory SessionFactory
	logger  *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager. Sessions are started with ctx as parent.
func NewManager(ctx context.Context, factory SessionFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory:  factory,
		logger:   logger,
		ctx:      ctx,
		sessions: make(map[string]*Session),
	}
}

// NewSessionFactory returns a factory that shares cfg and deps across
// symbols. The observer is called for every symbol.
func NewSessionFactory(cfg SessionConfig, deps Dependencies, logger *slog.Logger) SessionFactory {
	return func(symbol string) *Session {
		return NewSession(symbol, cfg, deps, logger)
	}
}

// Activate starts a session for symbol. Activating an already active symbol
// returns the running session.
func (m *Manager) Activate(symbol string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if s, ok := m.sessions[symbol]; ok {
		m.mu.Unlock()
		return s, nil
	}

	// Reserve the slot; Start does cache I/O and must not hold mu.
	s := m.factory(symbol)
	m.sessions[symbol] = s
	m.mu.Unlock()

	if err := s.Start(m.ctx); err != nil {
		m.mu.Lock()
		if m.sessions[symbol] == s {
			delete(m.sessions, symbol)
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("start session %s: %w", symbol, err)
	}

	m.logger.Info("symbol activated", "symbol", symbol, "session_id", s.ID())
	return s, nil
}

// Deactivate closes the session for symbol without waiting for teardown.
// It reports whether a session was active.
func (m *Manager) Deactivate(symbol string) bool {
	m.mu.Lock()
	s, ok := m.sessions[symbol]
	delete(m.sessions, symbol)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	m.logger.Info("symbol deactivated", "symbol", symbol, "session_id", s.ID())
	return true
}

// Switch deactivates from and activates to. The old session is closed
// before the new one starts.
func (m *Manager) Switch(from, to string) (*Session, error) {
	if from == to {
		return m.Activate(to)
	}
	m.Deactivate(from)
	return m.Activate(to)
}

// Session returns the active session for symbol.
func (m *Manager) Session(symbol string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[symbol]
	return s, ok
}

// Symbols returns the active symbols in sorted order.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.sessions))
	for sym := range m.sessions {
		out = append(out, sym)
	}
	m.mu.Unlock()

	sort.Strings(out)
	return out
}

// Statuses returns the status of each active session, sorted by symbol.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	out := make([]Status, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Status())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Close tears down every session and waits for them, or for ctx.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s.Close()
		g.Go(func() error {
			return s.Wait(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("wait for sessions: %w", err)
	}

	m.logger.Info("feed manager closed", "sessions", len(sessions))
	return nil
}
