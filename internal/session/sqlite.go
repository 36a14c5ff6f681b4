package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps session tokens in a local SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize session schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	if _, err := migrateUp(context.Background(), s.db, migrationFS); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id, token, updated_at FROM session_tokens WHERE session_id = ?`, id)

	var record Record
	var updatedAt int64
	if err := row.Scan(&record.ID, &record.Token, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("scan session token: %w", err)
	}
	record.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return record, nil
}

func (s *SQLiteStore) Save(ctx context.Context, id, token string) error {
	query := `
	INSERT INTO session_tokens (session_id, token, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		token = excluded.token,
		updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, id, strings.TrimSpace(token), s.now().Unix()); err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session token: %w", err)
	}
	return nil
}

// DeleteOlderThan removes tokens not updated since cutoff and returns how many
// were removed.
func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE updated_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune session tokens: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune session tokens rows affected: %w", err)
	}
	return removed, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
