package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "kb-chat"

// ErrNotMigrated is returned by Open when the sessions table is missing
var ErrNotMigrated = errors.New("chat_sessions table not found, run migrations first")

// SessionStore implements domain.SessionStore on the chat_sessions table.
// Every operation locks the row with SELECT ... FOR UPDATE.
type SessionStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionStore creates a session store on an existing pool
func NewSessionStore(pool *pgxpool.Pool, ttl time.Duration) *SessionStore {
	return &SessionStore{pool: pool, ttl: ttl, now: time.Now}
}

// Open connects a pool sized by cfg and checks the schema is in place
func Open(ctx context.Context, cfg config.DatabaseConfig, ttl time.Duration) (*SessionStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	var migrated bool
	if err := pool.QueryRow(ctx, `SELECT to_regclass('chat_sessions') IS NOT NULL`).Scan(&migrated); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if !migrated {
		pool.Close()
		return nil, ErrNotMigrated
	}

	return NewSessionStore(pool, ttl), nil
}

// Close releases the connection pool
func (r *SessionStore) Close() {
	r.pool.Close()
}

// Get returns the session, creating an empty row if none exists
func (r *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var out *domain.Session
	err := r.update(ctx, id, func(s *domain.Session) error {
		out = s.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetIdentity stores the identity and clears the transcript
func (r *SessionStore) SetIdentity(ctx context.Context, id string, identity domain.Identity) error {
	return r.update(ctx, id, func(s *domain.Session) error {
		s.Authorize(identity, r.now())
		return nil
	})
}

// AppendTurn appends turn if the session still belongs to subject
func (r *SessionStore) AppendTurn(ctx context.Context, id, subject string, turn domain.Turn) error {
	return r.update(ctx, id, func(s *domain.Session) error {
		return s.Append(subject, turn, r.now())
	})
}

// Clear erases identity and transcript
func (r *SessionStore) Clear(ctx context.Context, id string) error {
	return r.update(ctx, id, func(s *domain.Session) error {
		s.Reset(r.now())
		return nil
	})
}

// Ping verifies database connectivity
func (r *SessionStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// PurgeExpired deletes sessions idle past the ttl
func (r *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// update runs fn on the locked row inside one transaction, creating the
// row first when missing. When fn fails nothing is written.
func (r *SessionStore) update(ctx context.Context, id string, fn func(*domain.Session) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := r.now()

	insert := `
		INSERT INTO chat_sessions (id, transcript, created_at, updated_at, expires_at)
		VALUES ($1, '[]'::jsonb, $2, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insert, id, now, now.Add(r.ttl)); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	query := `
		SELECT identity, transcript, created_at, updated_at, expires_at
		FROM chat_sessions
		WHERE id = $1
		FOR UPDATE
	`
	var (
		identityJSON   []byte
		transcriptJSON []byte
		expiresAt      time.Time
	)
	s := &domain.Session{ID: id}
	err = tx.QueryRow(ctx, query, id).Scan(
		&identityJSON,
		&transcriptJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
		&expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if r.ttl > 0 && !now.Before(expiresAt) {
		s = domain.NewSession(id, now)
	} else if err := decodeSession(s, identityJSON, transcriptJSON); err != nil {
		return err
	}

	if err := fn(s); err != nil {
		return err
	}

	identityJSON, transcriptJSON, err = encodeSession(s)
	if err != nil {
		return err
	}

	update := `
		UPDATE chat_sessions
		SET identity = $2, transcript = $3, created_at = $4, updated_at = $5, expires_at = $6
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, update,
		id,
		identityJSON,
		transcriptJSON,
		s.CreatedAt,
		s.UpdatedAt,
		now.Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

func decodeSession(s *domain.Session, identityJSON, transcriptJSON []byte) error {
	if len(identityJSON) > 0 && string(identityJSON) != "null" {
		var identity domain.Identity
		if err := json.Unmarshal(identityJSON, &identity); err != nil {
			return fmt.Errorf("failed to unmarshal identity: %w", err)
		}
		s.Identity = &identity
	}

	s.Transcript = domain.Transcript{}
	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &s.Transcript); err != nil {
			return fmt.Errorf("failed to unmarshal transcript: %w", err)
		}
	}
	return nil
}

func encodeSession(s *domain.Session) (identityJSON, transcriptJSON []byte, err error) {
	if s.Identity != nil {
		identityJSON, err = json.Marshal(s.Identity)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal identity: %w", err)
		}
	}

	transcriptJSON, err = json.Marshal(s.Transcript.Clone())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return identityJSON, transcriptJSON, nil
}
