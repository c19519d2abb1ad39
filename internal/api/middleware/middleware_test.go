package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureSessionID(t *testing.T, req *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()

	var got string
	h := NewSessionCookie("sid", true, time.Hour).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetSessionID(r.Context())
		require.True(t, ok)
		got = id
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return got, rec
}

func TestSessionCookie_IssuesNewID(t *testing.T) {
	id, rec := captureSessionID(t, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(id)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "sid", c.Name)
	assert.Equal(t, id, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)
}

func TestSessionCookie_KeepsExistingID(t *testing.T) {
	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: existing})

	id, rec := captureSessionID(t, req)
	assert.Equal(t, existing, id)
	assert.Equal(t, existing, rec.Result().Cookies()[0].Value)
}

func TestSessionCookie_ReplacesMalformedID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "../../etc/passwd"})

	id, _ := captureSessionID(t, req)
	assert.NotEqual(t, "../../etc/passwd", id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestReissueSessionID(t *testing.T) {
	fresh := uuid.NewString()
	h := NewSessionCookie("sid", false, time.Hour).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "other", Value: "x"})
		assert.True(t, ReissueSessionID(r.Context(), w, fresh))
	}))

	req := httptest.NewRequest(http.MethodGet, "/authorize", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: uuid.NewString()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var sids []string
	var other bool
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case "sid":
			sids = append(sids, c.Value)
		case "other":
			other = true
		}
	}
	assert.Equal(t, []string{fresh}, sids)
	assert.True(t, other)
}

func TestReissueSessionID_WithoutMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.False(t, ReissueSessionID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), rec, "id"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogger_PassesThrough(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tea", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
