package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "User: Hi\nBot: ", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"Hello"}}],"usage":{"total_tokens":7}}`))
	}))
	defer srv.Close()

	p := NewProvider("sk-test", "", srv.URL)
	resp, err := p.Generate(context.Background(), llm.Request{Prompt: "User: Hi\nBot: "})
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Text)
	assert.Equal(t, 7, resp.TokensUsed)
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		checkFn func(t *testing.T, err error)
	}{
		{
			name:   "server error",
			status: http.StatusBadGateway,
			checkFn: func(t *testing.T, err error) {
				var statusErr *llm.StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
			},
		},
		{
			name:   "garbage body",
			status: http.StatusOK,
			body:   "not json",
			checkFn: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, llm.ErrMalformedResponse)
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			checkFn: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, llm.ErrMalformedResponse)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewProvider("sk-test", "", srv.URL).Generate(context.Background(), llm.Request{Prompt: "p"})
			tt.checkFn(t, err)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	p := New(Options{APIKey: "k"})
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, defaultBaseURL, p.baseURL)
	assert.True(t, p.IsConfigured())
	assert.False(t, New(Options{}).IsConfigured())
}
