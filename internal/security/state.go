package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	ErrStateMismatch = errors.New("login state mismatch")
	ErrStateExpired  = errors.New("login state expired")
)

type loginState struct {
	Value     string `json:"v"`
	ExpiresAt int64  `json:"e"`
}

// StateSealer binds an OAuth2 state parameter to the browser that started
// the login by sealing it into a cookie value.
type StateSealer struct {
	enc *Encryptor
	ttl time.Duration
	now func() time.Time
}

// NewStateSealer creates a sealer whose states expire after ttl
func NewStateSealer(enc *Encryptor, ttl time.Duration) *StateSealer {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateSealer{enc: enc, ttl: ttl, now: time.Now}
}

// TTL returns how long an issued state stays valid
func (s *StateSealer) TTL() time.Duration {
	return s.ttl
}

// New returns a random state and its sealed cookie form
func (s *StateSealer) New() (state, sealed string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	state = base64.RawURLEncoding.EncodeToString(buf)

	sealed, err = s.enc.SealJSON(loginState{
		Value:     state,
		ExpiresAt: s.now().Add(s.ttl).Unix(),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to seal state: %w", err)
	}
	return state, sealed, nil
}

// Verify checks that state matches the sealed cookie and has not expired
func (s *StateSealer) Verify(sealed, state string) error {
	if sealed == "" || state == "" {
		return ErrStateMismatch
	}

	var ls loginState
	if err := s.enc.OpenJSON(sealed, &ls); err != nil {
		return ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(ls.Value), []byte(state)) != 1 {
		return ErrStateMismatch
	}
	if s.now().Unix() > ls.ExpiresAt {
		return ErrStateExpired
	}
	return nil
}
