// Package session persists the inference session token of each conversation so
// a restarted process can resume it.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("session token not found")

// Record is one persisted conversation.
type Record struct {
	ID        string
	Token     string
	UpdatedAt time.Time
}

type Store interface {
	Load(ctx context.Context, id string) (Record, error)
	// Save upserts the token of id. An empty token marks a conversation that
	// exists but has no inference session yet.
	Save(ctx context.Context, id, token string) error
	Delete(ctx context.Context, id string) error
	Close() error
}

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Save stores token for id. An empty token keeps the record with no token.
func (s *MemoryStore) Save(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = Record{ID: id, Token: strings.TrimSpace(token), UpdatedAt: s.now().UTC()}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
