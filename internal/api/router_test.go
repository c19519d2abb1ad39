package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/Rrens/kb-chat/internal/metrics"
	"github.com/Rrens/kb-chat/internal/objectstore/local"
	"github.com/Rrens/kb-chat/internal/repository/memory"
	"github.com/Rrens/kb-chat/internal/security"
	"github.com/Rrens/kb-chat/internal/service"
	"github.com/Rrens/kb-chat/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return "echo", nil
}

type noopVerifier struct{}

func (noopVerifier) Verify(context.Context, string) (*domain.Identity, error) {
	return nil, domain.ErrMalformedToken
}

type fixedGenerator string

func (g fixedGenerator) Generate(context.Context, string) (string, error) {
	return string(g), nil
}

func newTestRouter(t *testing.T) (http.Handler, *memory.SessionStore) {
	t.Helper()
	return newTestRouterWith(t, time.Minute, echoGenerator{}, stream.New(1, 0))
}

func newTestRouterWith(t *testing.T, timeout time.Duration, gen service.Generator, encoder *stream.Encoder) (http.Handler, *memory.SessionStore) {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			MiddlewareTimeout: timeout,
			AllowedOrigins:    []string{"http://localhost:8501"},
		},
		Session: config.SessionConfig{CookieName: "sid", TTL: time.Hour},
		Storage: config.StorageConfig{AllowedExtension: ".md"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	store := memory.NewSessionStore(time.Hour)
	enc, err := security.NewEncryptorFromSecret("secret", "login-state")
	require.NoError(t, err)
	objects, err := local.New(t.TempDir())
	require.NoError(t, err)
	m := metrics.New()

	oauthCfg := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{AuthURL: "https://idp.example.com/oauth2/authorize"},
	}

	deps := Dependencies{
		Auth:     service.NewAuthService(oauthCfg, noopVerifier{}, store, security.NewStateSealer(enc, time.Minute), "/"),
		Chat:     service.NewChatService(store, gen, nil, m, 20),
		Upload:   service.NewUploadService(store, objects, security.NewFileNameValidator(".md"), "", 1024, m),
		Sessions: store,
		LLM:      llm.NewRouter("bedrock"),
		Encoder:  encoder,
		Metrics:  m,
	}
	return NewRouter(cfg, deps), store
}

func TestRouter_SessionFlow(t *testing.T) {
	router, store := newTestRouter(t)

	// First contact issues a session cookie
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sid *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sid" {
			sid = c
		}
	}
	require.NotNil(t, sid)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(`{"question":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(sid)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec = post()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())

	require.NoError(t, store.SetIdentity(context.Background(), sid.Value, domain.Identity{Subject: "u", Email: "u@example.com"}))

	rec = post()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo", rec.Body.String())

	sess, err := store.Get(context.Background(), sid.Value)
	require.NoError(t, err)
	assert.Equal(t, domain.Transcript{{User: "hi", Bot: "echo"}}, sess.Transcript)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health", "/ready", "/api/v1/health", "/api/v1/session", "/api/v1/llm-providers"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_LoginRedirects(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://idp.example.com/oauth2/authorize?"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logout", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestRouter_StreamOutlivesRequestTimeout(t *testing.T) {
	answer := strings.Repeat("abcdefghij", 10)
	router, store := newTestRouterWith(t, 100*time.Millisecond, fixedGenerator(answer), stream.New(1, 5*time.Millisecond))
	require.NoError(t, store.SetIdentity(context.Background(), "11111111-1111-4111-8111-111111111111", domain.Identity{Subject: "u"}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(`{"question":"long please"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "sid", Value: "11111111-1111-4111-8111-111111111111"})
	rec := httptest.NewRecorder()

	start := time.Now()
	router.ServeHTTP(rec, req)

	assert.Greater(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, answer, rec.Body.String())
}
