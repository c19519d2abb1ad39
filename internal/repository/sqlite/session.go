package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);
`

// SessionStore persists sessions in a local SQLite file, one JSON
// document per row.
type SessionStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates the database file if needed and prepares the schema
func Open(ctx context.Context, path string, ttl time.Duration) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// A single connection serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SessionStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Close closes the database
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var out *domain.Session
	err := s.update(ctx, id, func(sess *domain.Session) error {
		out = sess.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SessionStore) SetIdentity(ctx context.Context, id string, identity domain.Identity) error {
	return s.update(ctx, id, func(sess *domain.Session) error {
		sess.Authorize(identity, s.now())
		return nil
	})
}

func (s *SessionStore) AppendTurn(ctx context.Context, id, subject string, turn domain.Turn) error {
	return s.update(ctx, id, func(sess *domain.Session) error {
		return sess.Append(subject, turn, s.now())
	})
}

func (s *SessionStore) Clear(ctx context.Context, id string) error {
	return s.update(ctx, id, func(sess *domain.Session) error {
		sess.Reset(s.now())
		return nil
	})
}

func (s *SessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PurgeExpired deletes sessions idle past the ttl
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SessionStore) update(ctx context.Context, id string, fn func(*domain.Session) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	var (
		data      string
		expiresAt int64
	)
	err = tx.QueryRowContext(ctx, `SELECT data, expires_at FROM sessions WHERE id = ?`, id).Scan(&data, &expiresAt)

	var sess *domain.Session
	switch {
	case errors.Is(err, sql.ErrNoRows):
		sess = domain.NewSession(id, now)
	case err != nil:
		return fmt.Errorf("failed to get session: %w", err)
	case s.ttl > 0 && now.UnixNano() >= expiresAt:
		sess = domain.NewSession(id, now)
	default:
		sess = &domain.Session{}
		if err := json.Unmarshal([]byte(data), sess); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if sess.Transcript == nil {
			sess.Transcript = domain.Transcript{}
		}
	}

	if err := fn(sess); err != nil {
		return err
	}

	encoded, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	upsert := `
		INSERT INTO sessions (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`
	if _, err := tx.ExecContext(ctx, upsert, id, string(encoded), now.Add(s.ttl).UnixNano()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}
