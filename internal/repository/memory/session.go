package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
)

type entry struct {
	session   *domain.Session
	expiresAt time.Time
}

// SessionStore keeps sessions in process memory.
// Sessions expire after ttl of inactivity.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates an empty store. A zero ttl disables expiry.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// PurgeExpired drops sessions idle past the ttl
func (s *SessionStore) PurgeExpired(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && !now.Before(e.expiresAt)
}

// load returns the live entry for id, creating it when missing or expired.
// Caller holds mu.
func (s *SessionStore) load(id string, now time.Time) *entry {
	e, ok := s.sessions[id]
	if !ok || s.expired(e, now) {
		e = &entry{session: domain.NewSession(id, now)}
		s.sessions[id] = e
	}
	e.expiresAt = now.Add(s.ttl)
	return e
}

// Get returns a copy of the session, creating an empty one if needed
func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(id, s.now()).session.Clone(), nil
}

// SetIdentity stores the identity and clears the transcript
func (s *SessionStore) SetIdentity(_ context.Context, id string, identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.load(id, now).session.Authorize(identity, now)
	return nil
}

// AppendTurn appends turn if the session still belongs to subject
func (s *SessionStore) AppendTurn(_ context.Context, id, subject string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	return s.load(id, now).session.Append(subject, turn, now)
}

// Clear erases identity and transcript
func (s *SessionStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.load(id, now).session.Reset(now)
	return nil
}

// Ping always succeeds
func (s *SessionStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of tracked sessions
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
