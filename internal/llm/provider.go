package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request contains one generation call
type Request struct {
	Prompt string
	Model  string
}

// Response contains the generated answer
type Response struct {
	Text       string
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for generation backends
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Generate produces an answer for the prompt
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrMalformedResponse is wrapped by providers when the backend answered
// with something that could not be decoded or carried no text.
var ErrMalformedResponse = errors.New("malformed response")

// StatusError reports a non-success HTTP status from a backend
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Provider, e.StatusCode)
}
