package analyst

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sqlanalyst/sqlanalyst/internal/session"
)

var ErrSessionClosed = errors.New("analyst session closed")

// forgetter is implemented by inference clients that hold transcripts locally.
type forgetter interface {
	Forget(token string)
}

type SessionConfig struct {
	ID       string
	Agent    *Agent
	Executor Executor
	// Conn is released by Close. Optional.
	Conn   io.Closer
	Store  session.Store
	Token  string
	Logger *slog.Logger
}

// Session is one conversation bound to one warehouse connection. Questions on
// the same session run one at a time.
type Session struct {
	id       string
	executor Executor
	conn     io.Closer
	store    session.Store
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	agent      *Agent
	conv       Conversation
	queryCount int
	lastUsed   time.Time
	closed     bool
}

func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		id:       cfg.ID,
		agent:    cfg.Agent,
		executor: cfg.Executor,
		conn:     cfg.Conn,
		store:    cfg.Store,
		logger:   logger.With(slog.String("session_id", cfg.ID)),
		now:      time.Now,
		conv:     Conversation{Token: cfg.Token},
		lastUsed: time.Now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Ask runs one question and persists the session token when it changes.
func (s *Session) Ask(ctx context.Context, question string, observers ...QueryObserver) Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Answer{Text: apiErrorPrefix + ErrSessionClosed.Error(), Err: ErrSessionClosed}
	}

	before := s.conv.Token
	answer := s.agent.Ask(ctx, &s.conv, s.executor, question, observers...)
	s.queryCount = answer.Queries
	s.lastUsed = s.now()

	if s.store != nil && s.id != "" && s.conv.Token != before {
		if err := s.store.Save(ctx, s.id, s.conv.Token); err != nil {
			s.logger.WarnContext(ctx, "persist session token failed", slog.String("error", err.Error()))
		}
	}
	return answer
}

// Reset discards the session token. The persisted token is cleared first; if
// that fails the in-memory state is left unchanged.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked(ctx)
}

func (s *Session) resetLocked(ctx context.Context) error {
	if s.store != nil && s.id != "" {
		if err := s.store.Save(ctx, s.id, ""); err != nil {
			return fmt.Errorf("reset session %s: %w", s.id, err)
		}
	}
	s.forgetLocked()
	s.conv = Conversation{}
	s.queryCount = 0
	s.lastUsed = s.now()
	return nil
}

// SetSystemPrompt replaces the system prompt and resets the conversation. The
// previous prompt is kept when the reset fails.
func (s *Session) SetSystemPrompt(ctx context.Context, systemPrompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.agent
	s.agent = s.agent.WithSystemPrompt(systemPrompt)
	if err := s.resetLocked(ctx); err != nil {
		s.agent = previous
		return err
	}
	return nil
}

func (s *Session) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent.SystemPrompt()
}

// QueryCount is the number of successful queries of the last question.
func (s *Session) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCount
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Token
}

func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Close releases the warehouse connection. The persisted token is kept so the
// conversation can be resumed; sessions that cannot be resumed also drop the
// transcript held by the inference client.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// Discard closes the session and drops its transcript.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgetLocked()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.store == nil || s.id == "" {
		s.forgetLocked()
	}
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close session %s connection: %w", s.id, err)
	}
	return nil
}

func (s *Session) forgetLocked() {
	if s.conv.Token == "" {
		return
	}
	if f, ok := s.agent.client.(forgetter); ok {
		f.Forget(s.conv.Token)
	}
}
