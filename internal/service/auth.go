package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/security"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// CodeExchanger is the part of *oauth2.Config used by the login flow
type CodeExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// TokenVerifier validates an identity token
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*domain.Identity, error)
}

// AuthService runs the authorization code login against the identity provider
type AuthService struct {
	oauth     CodeExchanger
	verifier  TokenVerifier
	sessions  domain.SessionStore
	states    *security.StateSealer
	logoutURL string
}

// NewAuthService creates a new auth service
func NewAuthService(
	oauth CodeExchanger,
	verifier TokenVerifier,
	sessions domain.SessionStore,
	states *security.StateSealer,
	logoutURL string,
) *AuthService {
	return &AuthService{
		oauth:     oauth,
		verifier:  verifier,
		sessions:  sessions,
		states:    states,
		logoutURL: logoutURL,
	}
}

// NewOAuth2Config builds the code flow client for the configured provider
func NewOAuth2Config(cfg config.AuthConfig) *oauth2.Config {
	base := "https://" + cfg.Domain
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + "/oauth2/authorize",
			TokenURL:  base + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

// LogoutURL returns the provider logout endpoint for cfg, or "/" when no
// provider domain is configured
func LogoutURL(cfg config.AuthConfig) string {
	if cfg.Domain == "" {
		return "/"
	}
	q := url.Values{}
	q.Set("client_id", cfg.ClientID)
	q.Set("logout_uri", cfg.LogoutRedirectURL)
	return "https://" + cfg.Domain + "/logout?" + q.Encode()
}

// LoginURL returns the provider authorize URL and the sealed state that
// must come back with the callback
func (s *AuthService) LoginURL() (authURL, sealedState string, err error) {
	state, sealed, err := s.states.New()
	if err != nil {
		return "", "", err
	}
	return s.oauth.AuthCodeURL(state), sealed, nil
}

// Login is a completed sign-in. The identity lives under a freshly issued
// session id; the id the browser arrived with no longer carries anything.
type Login struct {
	Identity  *domain.Identity
	SessionID string
}

// Callback completes a login. On any failure the session is left as it was.
func (s *AuthService) Callback(ctx context.Context, sessionID, code, state, sealedState string) (*Login, error) {
	if err := s.states.Verify(sealedState, state); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", domain.ErrAuthentication)
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %v", domain.ErrAuthentication, err)
	}

	rawID, _ := token.Extra("id_token").(string)
	if rawID == "" {
		return nil, fmt.Errorf("%w: no id_token in token response", domain.ErrMalformedToken)
	}

	identity, err := s.verifier.Verify(ctx, rawID)
	if err != nil {
		if !errors.Is(err, domain.ErrAuthentication) {
			err = fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
		}
		return nil, err
	}

	// A new id keeps a cookie planted before login from riding the session
	newID := uuid.NewString()
	if err := s.sessions.SetIdentity(ctx, newID, *identity); err != nil {
		return nil, fmt.Errorf("failed to store identity: %w", err)
	}
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to clear pre-login session")
	}

	log.Info().
		Str("session_id", newID).
		Str("subject", identity.Subject).
		Strs("groups", identity.Groups).
		Msg("user logged in")

	return &Login{Identity: identity, SessionID: newID}, nil
}

// Logout clears the session and returns where the browser goes next
func (s *AuthService) Logout(ctx context.Context, sessionID string) (string, error) {
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		return "", fmt.Errorf("failed to clear session: %w", err)
	}
	log.Info().Str("session_id", sessionID).Msg("user logged out")
	return s.logoutURL, nil
}

// StateTTL returns the lifetime of a login state cookie
func (s *AuthService) StateTTL() int {
	return int(s.states.TTL().Seconds())
}
