package analyst

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlanalyst/sqlanalyst/internal/observability"
	"github.com/sqlanalyst/sqlanalyst/internal/session"
	"github.com/sqlanalyst/sqlanalyst/internal/warehouse"
)

var (
	ErrSessionNotFound = errors.New("analyst session not found")
	ErrTooManySessions = errors.New("too many open analyst sessions")
)

const (
	defaultMaxSessions   = 32
	defaultIdleTTL       = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// ConnSource hands out dedicated warehouse connections. *warehouse.Pool
// satisfies it.
type ConnSource interface {
	Checkout(ctx context.Context) (*sql.Conn, error)
}

type ManagerConfig struct {
	Agent       *Agent
	Pool        ConnSource
	Store       session.Store
	MaxRows     int
	MaxSessions int
	IdleTTL     time.Duration
	// TokenRetention prunes persisted tokens unused for longer on every sweep
	// when the store supports it. Zero disables pruning.
	TokenRetention time.Duration
	Logger         *slog.Logger
}

// pruner is implemented by stores that can drop stale tokens.
type pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Manager owns the open sessions of the HTTP server. Every session has its own
// connection, so questions on different sessions never share a cursor.
type Manager struct {
	agent       *Agent
	pool        ConnSource
	store       session.Store
	maxRows     int
	maxSessions int
	idleTTL     time.Duration
	retention   time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("warehouse pool is required")
	}
	store := cfg.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		agent:       cfg.Agent,
		pool:        cfg.Pool,
		store:       store,
		maxRows:     cfg.MaxRows,
		maxSessions: maxSessions,
		idleTTL:     idleTTL,
		retention:   cfg.TokenRetention,
		logger:      logger,
		now:         time.Now,
		sessions:    map[string]*Session{},
	}, nil
}

// Create opens a new session and persists it with an empty token, so it can be
// resumed after the idle sweep even before the model hands out a token.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	if err := m.store.Save(ctx, id, ""); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", id, err)
	}
	s, err := m.open(ctx, id, "")
	if err != nil {
		if delErr := m.store.Delete(ctx, id); delErr != nil {
			m.logger.WarnContext(ctx, "drop unopened session failed", slog.String("session_id", id), slog.String("error", delErr.Error()))
		}
		return nil, err
	}
	return s, nil
}

// Get returns an open session, resuming it from the store when it was closed
// by the idle sweep or a restart.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	record, err := m.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	m.logger.InfoContext(ctx, "resuming analyst session", slog.String("session_id", id))
	return m.open(ctx, id, record.Token)
}

// Ephemeral opens a session that is neither registered nor persisted. The
// caller must Close it.
func (m *Manager) Ephemeral(ctx context.Context) (*Session, error) {
	conn, err := m.pool.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	return NewSession(SessionConfig{
		Agent:    m.agent,
		Executor: warehouse.NewExecutor(conn, m.maxRows, m.logger),
		Conn:     conn,
		Logger:   m.logger,
	}), nil
}

// open registers a session for id. The warehouse connection is checked out
// without holding m.mu, since Checkout may wait for the pool.
func (m *Manager) open(ctx context.Context, id, token string) (*Session, error) {
	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.mu.Unlock()

	conn, err := m.pool.Checkout(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		_ = conn.Close()
		return existing, nil
	}
	if len(m.sessions) >= m.maxSessions {
		_ = conn.Close()
		return nil, ErrTooManySessions
	}
	s := NewSession(SessionConfig{
		ID:       id,
		Agent:    m.agent,
		Executor: warehouse.NewExecutor(conn, m.maxRows, m.logger),
		Conn:     conn,
		Store:    m.store,
		Token:    token,
		Logger:   m.logger,
	})
	s.now = m.now
	s.lastUsed = m.now()
	m.sessions[id] = s
	observability.SetActiveSessions(len(m.sessions))
	return s, nil
}

func (m *Manager) Reset(ctx context.Context, id string) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.Reset(ctx)
}

// Delete closes the session and removes its persisted token and transcript.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	observability.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	if !ok {
		record, err := m.store.Load(ctx, id)
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		if err == nil {
			m.forget(record.Token)
		}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if ok {
		return s.Discard()
	}
	return nil
}

func (m *Manager) forget(token string) {
	if token == "" {
		return
	}
	if f, ok := m.agent.client.(forgetter); ok {
		f.Forget(token)
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were closed. Sessions busy answering a question are skipped.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			idle = append(idle, s)
			continue
		}
		s.mu.Unlock()
	}
	observability.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	for _, s := range idle {
		if err := s.closeLocked(); err != nil {
			m.logger.WarnContext(ctx, "close idle session failed", slog.String("session_id", s.id), slog.String("error", err.Error()))
		}
		s.mu.Unlock()
	}
	if len(idle) > 0 {
		m.logger.InfoContext(ctx, "closed idle analyst sessions", slog.Int("count", len(idle)))
	}
	m.pruneTokens(ctx)
	return len(idle)
}

func (m *Manager) pruneTokens(ctx context.Context) {
	p, ok := m.store.(pruner)
	if !ok || m.retention <= 0 {
		return
	}
	removed, err := p.DeleteOlderThan(ctx, m.now().Add(-m.retention))
	if err != nil {
		m.logger.WarnContext(ctx, "prune session tokens failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		m.logger.InfoContext(ctx, "pruned stale session tokens", slog.Int64("count", removed))
	}
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Close closes every open session. Persisted tokens are kept.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = map[string]*Session{}
	observability.SetActiveSessions(0)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
