package account

import (
	"context"
	"slices"
	"strings"
	"time"

	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is a verified signed-in user
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type identityClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type identityKey struct{}

// WithIdentity stores a verified identity in the context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.ID != ""
}

// Verifier checks bearer tokens issued by the identity provider
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	dev      *Identity
}

// NewVerifier creates a verifier from auth configuration
func NewVerifier(cfg config.AuthConfig) *Verifier {
	v := &Verifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}
	if cfg.DevIdentity != "" {
		v.dev = &Identity{ID: cfg.DevIdentity, Email: cfg.DevEmail}
	}
	return v
}

// DevIdentity returns the fixed development identity, if one is configured
func (v *Verifier) DevIdentity() (Identity, bool) {
	if v.dev == nil {
		return Identity{}, false
	}
	return *v.dev, true
}

// Verify parses and validates an HS256 token
func (v *Verifier) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, unauthorized("missing bearer token", nil)
	}
	if len(v.secret) == 0 {
		return Identity{}, unauthorized("token verification is not configured", nil)
	}

	claims := &identityClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || tok == nil || !tok.Valid {
		return Identity{}, unauthorized("invalid token", err)
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, unauthorized("invalid token issuer", nil)
	}
	if v.audience != "" && !slices.Contains(claims.Audience, v.audience) {
		return Identity{}, unauthorized("invalid token audience", nil)
	}
	if claims.Subject == "" {
		return Identity{}, unauthorized("missing subject", nil)
	}

	id := Identity{ID: claims.Subject, Email: claims.Email}
	if name, ok := claims.UserMetadata["full_name"].(string); ok {
		id.Name = name
	}
	return id, nil
}

// VerifyHeader extracts and verifies a bearer token from an Authorization header
func (v *Verifier) VerifyHeader(header string) (Identity, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return Identity{}, unauthorized("missing bearer token", nil)
	}
	return v.Verify(strings.TrimPrefix(header, "Bearer "))
}

// Issue signs a token for id. Used by the CLI login helper and tests.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig, "auth.jwtSecret is not set", nil)
	}
	now := time.Now()
	claims := identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Email: id.Email,
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	if id.Name != "" {
		claims.UserMetadata = map[string]any{"full_name": id.Name}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func unauthorized(message string, cause error) error {
	return errors.NewUnauthorizedError(errors.ErrCodeUnauthorized, message, cause)
}
