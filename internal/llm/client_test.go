package llm_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	configured bool
	generate   func(ctx context.Context, req llm.Request) (*llm.Response, error)
	calls      int
	lastPrompt string
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) AvailableModels() []string { return []string{"m"} }
func (f *fakeProvider) DefaultModel() string      { return "m" }
func (f *fakeProvider) IsConfigured() bool        { return f.configured }

func (f *fakeProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.lastPrompt = req.Prompt
	return f.generate(ctx, req)
}

type recordingObserver struct {
	provider string
	err      error
	calls    int
}

func (r *recordingObserver) ObserveBackend(provider string, _ time.Duration, err error) {
	r.provider = provider
	r.err = err
	r.calls++
}

func newClient(p *fakeProvider, timeout time.Duration, obs llm.Observer) *llm.Client {
	router := llm.NewRouter(p.name)
	router.RegisterProvider(p)
	return llm.NewClient(router, "", "", timeout, obs)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestClient_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: true, generate: func(context.Context, llm.Request) (*llm.Response, error) {
			return &llm.Response{Text: "X is a thing."}, nil
		}}
		obs := &recordingObserver{}

		answer, err := newClient(p, time.Second, obs).Generate(ctx, "User: What is X?\nBot: ")
		require.NoError(t, err)
		assert.Equal(t, "X is a thing.", answer)
		assert.Equal(t, "User: What is X?\nBot: ", p.lastPrompt)
		assert.Equal(t, 1, obs.calls)
		assert.Equal(t, "fake", obs.provider)
		assert.NoError(t, obs.err)
	})

	t.Run("empty answer passes through", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: true, generate: func(context.Context, llm.Request) (*llm.Response, error) {
			return &llm.Response{Text: ""}, nil
		}}
		obs := &recordingObserver{}

		answer, err := newClient(p, time.Second, obs).Generate(ctx, "p")
		require.NoError(t, err)
		assert.Empty(t, answer)
		assert.NoError(t, obs.err)
	})

	t.Run("missing answer field is malformed", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: true, generate: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, fmt.Errorf("%w: no output text", llm.ErrMalformedResponse)
		}}
		obs := &recordingObserver{}

		_, err := newClient(p, time.Second, obs).Generate(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrBackendResponse)
		assert.ErrorIs(t, err, domain.ErrBackend)
		assert.Error(t, obs.err)
	})

	t.Run("timeout", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: true, generate: func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}

		start := time.Now()
		_, err := newClient(p, 20*time.Millisecond, nil).Generate(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrBackendTimeout)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("network timeout", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: true, generate: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, timeoutError{}
		}}

		_, err := newClient(p, time.Second, nil).Generate(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrBackendTimeout)
	})

	t.Run("status error is unavailable", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: true, generate: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, &llm.StatusError{Provider: "fake", StatusCode: 503}
		}}

		_, err := newClient(p, time.Second, nil).Generate(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("decode failure is malformed", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: true, generate: func(context.Context, llm.Request) (*llm.Response, error) {
			return nil, llm.ErrMalformedResponse
		}}

		_, err := newClient(p, time.Second, nil).Generate(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrBackendResponse)
	})

	t.Run("unconfigured provider is unavailable", func(t *testing.T) {
		p := &fakeProvider{name: "fake", configured: false}

		_, err := newClient(p, time.Second, nil).Generate(ctx, "p")
		assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
		assert.Equal(t, 0, p.calls)
	})
}

func TestClassify_PassesThroughDomainErrors(t *testing.T) {
	err := llm.Classify(context.Background(), domain.ErrBackendTimeout)
	assert.True(t, errors.Is(err, domain.ErrBackendTimeout))
}
