package domain

import (
	"context"
	"io"
	"time"
)

// Session holds the identity and transcript of one browser session
type Session struct {
	ID         string     `json:"id"`
	Identity   *Identity  `json:"identity,omitempty"`
	Transcript Transcript `json:"transcript"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Authenticated reports whether an identity has been established
func (s *Session) Authenticated() bool {
	return s != nil && s.Identity != nil
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Identity != nil {
		id := s.Identity.Clone()
		out.Identity = &id
	}
	out.Transcript = s.Transcript.Clone()
	return &out
}

// NewSession returns an empty unauthenticated session
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Transcript: Transcript{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Authorize replaces the identity and starts a fresh transcript
func (s *Session) Authorize(identity Identity, now time.Time) {
	id := identity.Clone()
	s.Identity = &id
	s.Transcript = Transcript{}
	s.UpdatedAt = now
}

// Append adds turn when the session belongs to subject
func (s *Session) Append(subject string, turn Turn, now time.Time) error {
	if s.Identity == nil || s.Identity.Subject != subject {
		return ErrUnauthorized
	}
	s.Transcript = append(s.Transcript, turn)
	s.UpdatedAt = now
	return nil
}

// Reset drops identity and transcript
func (s *Session) Reset(now time.Time) {
	s.Identity = nil
	s.Transcript = Transcript{}
	s.UpdatedAt = now
}

// SessionStore defines the interface for per-session state.
//
// Implementations must keep AppendTurn atomic with respect to a session and
// must never expose a partially written transcript.
type SessionStore interface {
	// Get returns the session, creating an empty one if none exists.
	Get(ctx context.Context, id string) (*Session, error)

	// SetIdentity stores the identity and clears any previous transcript.
	SetIdentity(ctx context.Context, id string, identity Identity) error

	// AppendTurn appends a turn if the session identity is set and its
	// subject equals subject. Otherwise it returns ErrUnauthorized and the
	// transcript is unchanged.
	AppendTurn(ctx context.Context, id string, subject string, turn Turn) error

	// Clear erases identity and transcript.
	Clear(ctx context.Context, id string) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}

// ObjectStore stores uploaded documents
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// Notifier delivers a plain text message to an external channel
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
