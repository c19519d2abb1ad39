package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	SessionIDKey    contextKey = "sessionID"
	sessionReissuer contextKey = "sessionReissuer"
)

// SessionCookie assigns every browser an opaque session id kept in an
// HttpOnly cookie
type SessionCookie struct {
	name   string
	secure bool
	maxAge int
}

// NewSessionCookie creates the middleware. ttl sets the cookie lifetime.
func NewSessionCookie(name string, secure bool, ttl time.Duration) *SessionCookie {
	return &SessionCookie{name: name, secure: secure, maxAge: int(ttl.Seconds())}
}

// Handle loads the session id from the cookie, issuing a new one when
// missing or malformed
func (m *SessionCookie) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(m.name); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}

		// Refresh on every request so the cookie slides with the store ttl
		if id == "" {
			id = uuid.NewString()
		}
		http.SetCookie(w, m.cookie(id))

		ctx := WithSessionID(r.Context(), id)
		ctx = context.WithValue(ctx, sessionReissuer, m.reissue)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *SessionCookie) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    id,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// reissue replaces the pending session cookie with one carrying id
func (m *SessionCookie) reissue(w http.ResponseWriter, id string) {
	header := w.Header()
	prefix := m.name + "="

	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
	http.SetCookie(w, m.cookie(id))
}

// ReissueSessionID points the browser at session id from now on. It must
// run before the response is written and reports false when the request
// did not pass through SessionCookie.
func ReissueSessionID(ctx context.Context, w http.ResponseWriter, id string) bool {
	reissue, ok := ctx.Value(sessionReissuer).(func(http.ResponseWriter, string))
	if !ok {
		return false
	}
	reissue(w, id)
	return true
}

// WithSessionID stores the session id in ctx
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// GetSessionID gets the session id from context
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(SessionIDKey).(string)
	return id, ok && id != ""
}
