package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix  = "session:"
	maxTxnAttempts = 16
)

// SessionStore keeps each session as one JSON document with a sliding expiry.
// Mutations run in WATCH/MULTI transactions and retry on conflict.
type SessionStore struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore creates a new Redis session store
func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl, now: time.Now}
}

func sessionKey(id string) string {
	return sessionPrefix + id
}

// Get returns the session, creating an empty one if none exists
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

// SetIdentity stores the identity and clears the transcript
func (s *SessionStore) SetIdentity(ctx context.Context, id string, identity domain.Identity) error {
	return s.update(ctx, id, func(sess *domain.Session) error {
		sess.Authorize(identity, s.now())
		return nil
	})
}

// AppendTurn appends turn if the session still belongs to subject
func (s *SessionStore) AppendTurn(ctx context.Context, id, subject string, turn domain.Turn) error {
	return s.update(ctx, id, func(sess *domain.Session) error {
		return sess.Append(subject, turn, s.now())
	})
}

// Clear erases identity and transcript
func (s *SessionStore) Clear(ctx context.Context, id string) error {
	return s.update(ctx, id, func(sess *domain.Session) error {
		sess.Reset(s.now())
		return nil
	})
}

// Ping verifies Redis connectivity
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// update loads the session under WATCH, applies fn and writes it back.
// When fn fails nothing is written.
func (s *SessionStore) update(ctx context.Context, id string, fn func(*domain.Session) error) error {
	key := sessionKey(id)

	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}

		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		err := s.client.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session %s: too many concurrent updates", id)
}

func (s *SessionStore) load(ctx context.Context, tx *redis.Tx, id string) (*domain.Session, error) {
	data, err := tx.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewSession(id, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Transcript == nil {
		sess.Transcript = domain.Transcript{}
	}
	return &sess, nil
}
