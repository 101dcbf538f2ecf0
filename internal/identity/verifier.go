// Package identity verifies bearer credentials issued by the external
// identity provider and yields the stable user id they belong to. The core
// consumes the Verifier interface only; the JWT implementation is the
// default wiring.
package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	apperrors "keygate/internal/errors"
)

// Verifier validates an opaque bearer credential and returns the stable
// user identity it was issued for.
type Verifier interface {
	Verify(ctx context.Context, bearerToken string) (string, error)
}

// Claims represents the token claims issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a secret shared with the
// identity provider.
type JWTVerifier struct {
	secretKey string
	issuer    string
}

// NewJWTVerifier creates a verifier for tokens from the given issuer.
func NewJWTVerifier(secretKey, issuer string) *JWTVerifier {
	return &JWTVerifier{secretKey: secretKey, issuer: issuer}
}

// Verify validates the token signature, expiry and issuer, and returns the
// subject claim. Any failure is ErrAuthenticationFailed; the caller never
// sees parser internals.
func (v *JWTVerifier) Verify(ctx context.Context, bearerToken string) (string, error) {
	if bearerToken == "" {
		return "", apperrors.ErrAuthenticationFailed
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(bearerToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(v.secretKey), nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrAuthenticationFailed, err)
	}
	if !token.Valid {
		return "", apperrors.ErrAuthenticationFailed
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", apperrors.ErrAuthenticationFailed)
	}

	return claims.Subject, nil
}
