package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/rs/zerolog/log"
)

// Observer records backend calls
type Observer interface {
	ObserveBackend(provider string, elapsed time.Duration, err error)
}

// Client turns a prompt into answer text through the routed provider.
// It bounds every call with a timeout and maps failures onto the
// domain.ErrBackend family. It never retries.
type Client struct {
	router   *Router
	provider string
	model    string
	timeout  time.Duration
	observer Observer
}

// NewClient creates a client for provider (empty means the router default)
func NewClient(router *Router, provider, model string, timeout time.Duration, observer Observer) *Client {
	return &Client{
		router:   router,
		provider: provider,
		model:    model,
		timeout:  timeout,
		observer: observer,
	}
}

// Generate returns the backend's answer for prompt. An answer that is
// present but empty is returned as is; providers report a missing answer
// field as ErrMalformedResponse.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	p, err := c.router.GetProvider(c.provider)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Generate(ctx, Request{Prompt: prompt, Model: c.model})
	elapsed := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveBackend(p.Name(), elapsed, err)
	}

	if err != nil {
		classified := Classify(ctx, err)
		log.Warn().
			Err(err).
			Str("provider", p.Name()).
			Dur("elapsed", elapsed).
			Msg("generation failed")
		return "", classified
	}

	log.Debug().
		Str("provider", p.Name()).
		Str("model", resp.Model).
		Int("tokens", resp.TokensUsed).
		Dur("elapsed", elapsed).
		Msg("generation completed")

	return resp.Text, nil
}

// Classify maps a provider error onto the domain.ErrBackend family
func Classify(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrBackend) {
		return err
	}

	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", domain.ErrBackendTimeout, err)
	case errors.Is(err, ErrMalformedResponse):
		return fmt.Errorf("%w: %v", domain.ErrBackendResponse, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
}
