package service

import (
	"context"
	"io"
	"sync"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

// MockSessionStore mocks domain.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) SetIdentity(ctx context.Context, id string, identity domain.Identity) error {
	args := m.Called(ctx, id, identity)
	return args.Error(0)
}

func (m *MockSessionStore) AppendTurn(ctx context.Context, id, subject string, turn domain.Turn) error {
	args := m.Called(ctx, id, subject, turn)
	return args.Error(0)
}

func (m *MockSessionStore) Clear(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSessionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockGenerator mocks Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockObjectStore mocks domain.ObjectStore
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

// MockCodeExchanger mocks CodeExchanger
type MockCodeExchanger struct {
	mock.Mock
}

func (m *MockCodeExchanger) AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockCodeExchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

// MockTokenVerifier mocks TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(ctx context.Context, raw string) (*domain.Identity, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

// recordingDispatcher keeps every dispatched text
type recordingDispatcher struct {
	mu    sync.Mutex
	texts []string
}

func (d *recordingDispatcher) Dispatch(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
}

func (d *recordingDispatcher) Texts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.texts...)
}

// outcomeRecorder counts chat outcomes and upload results
type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	uploads  []error
}

func (r *outcomeRecorder) ObserveChat(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *outcomeRecorder) ObserveUpload(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, err)
}

func (r *outcomeRecorder) Outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}
