package session

import (
	"fmt"
	"strings"

	"github.com/sqlanalyst/sqlanalyst/internal/config"
)

// Open returns the token store selected by cfg.Store.
func Open(cfg config.SessionConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", config.SessionStoreMemory:
		return NewMemoryStore(), nil
	case config.SessionStoreSQLite:
		store, err := NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Store)
	}
}
