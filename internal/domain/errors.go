package domain

import (
	"errors"
	"fmt"
)

// Authentication errors. Every subtype matches ErrAuthentication with errors.Is.
var (
	ErrAuthentication   = errors.New("authentication failed")
	ErrMalformedToken   = fmt.Errorf("%w: malformed token", ErrAuthentication)
	ErrInvalidSignature = fmt.Errorf("%w: invalid token signature", ErrAuthentication)
	ErrTokenExpired     = fmt.Errorf("%w: token expired", ErrAuthentication)
	ErrInvalidAudience  = fmt.Errorf("%w: invalid audience", ErrAuthentication)
	ErrInvalidIssuer    = fmt.Errorf("%w: invalid issuer", ErrAuthentication)
	ErrWrongTokenUse    = fmt.Errorf("%w: not an identity token", ErrAuthentication)
)

// ErrUnauthorized is returned when a gated operation runs on a session
// without an identity.
var ErrUnauthorized = errors.New("unauthorized")

// ErrEmptyInput is returned for a blank question.
var ErrEmptyInput = errors.New("empty input")

// Generation backend errors.
var (
	ErrBackend            = errors.New("generation backend error")
	ErrBackendUnavailable = fmt.Errorf("%w: backend unavailable", ErrBackend)
	ErrBackendTimeout     = fmt.Errorf("%w: backend timed out", ErrBackend)
	ErrBackendResponse    = fmt.Errorf("%w: malformed backend response", ErrBackend)
)

// Upload errors.
var (
	ErrStorage         = errors.New("storage error")
	ErrInvalidFileName = errors.New("invalid file name")
	ErrFileTooLarge    = errors.New("file too large")
)

// ErrNotification is never surfaced to callers; it tags dispatcher logs.
var ErrNotification = errors.New("notification failed")
