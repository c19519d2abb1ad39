package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the ID token claims issued by the identity provider
type Claims struct {
	TokenUse      string    `json:"token_use"`
	Email         string    `json:"email,omitempty"`
	EmailVerified *FlexBool `json:"email_verified,omitempty"`
	Groups        []string  `json:"cognito:groups,omitempty"`
	jwt.RegisteredClaims
}

// FlexBool accepts both JSON booleans and the strings "true"/"false".
// Some providers emit email_verified as a string.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	*b = FlexBool(v)
	return nil
}

// Verifier validates RS256 identity tokens against an issuer and audience
type Verifier struct {
	keys     *KeySet
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewVerifier creates a verifier for tokens issued by issuer for audience
func NewVerifier(keys *KeySet, issuer, audience string, leeway time.Duration) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		leeway:   leeway,
		now:      time.Now,
	}
}

// Verify checks the signature and claims of raw and returns the identity it
// carries. All failures match domain.ErrAuthentication.
func (v *Verifier) Verify(ctx context.Context, raw string) (*domain.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrMalformedToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx))
	if err != nil {
		return nil, classifyTokenError(err)
	}

	if claims.TokenUse != "id" {
		return nil, domain.ErrWrongTokenUse
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrMalformedToken)
	}

	identity := &domain.Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Groups:  claims.Groups,
	}
	if claims.EmailVerified != nil {
		verified := bool(*claims.EmailVerified)
		identity.EmailVerified = &verified
	}
	return identity, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return domain.ErrInvalidAudience
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return domain.ErrInvalidIssuer
	default:
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
}
