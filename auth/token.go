// Package auth resolves handshake tokens into identities. Token
// issuance belongs to the identity provider; the hub only validates.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"live-hub/domain"
)

const issuer = "live-hub"

// CustomClaims is the data stored inside the JWT.
type CustomClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenDirectory validates HS256 JWTs against a shared secret and
// extracts the identity. It implements the identity-lookup collaborator
// contract.
type TokenDirectory struct {
	secret []byte
	maxTTL time.Duration
}

// NewTokenDirectory builds a directory for the shared secret. maxTTL
// caps the remaining lifetime a token may still carry at validation
// time, so a leaked long-lived token is not honored forever; zero
// disables the cap.
func NewTokenDirectory(secret string, maxTTL time.Duration) *TokenDirectory {
	return &TokenDirectory{secret: []byte(secret), maxTTL: maxTTL}
}

// LookupIdentityByToken parses and validates the signature and the
// expiration of a token string, returning the identity it encodes.
func (d *TokenDirectory) LookupIdentityByToken(_ context.Context, tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(*jwt.Token) (interface{}, error) {
		return d.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrSignatureInvalid
	}
	if claims.Username == "" {
		return "", fmt.Errorf("token carries no username")
	}
	if d.maxTTL > 0 {
		if claims.ExpiresAt == nil {
			return "", fmt.Errorf("token carries no expiration")
		}
		if remaining := time.Until(claims.ExpiresAt.Time); remaining > d.maxTTL {
			return "", fmt.Errorf("token lifetime %s exceeds the accepted maximum %s", remaining.Round(time.Second), d.maxTTL)
		}
	}
	return domain.Identity(claims.Username), nil
}

// GenerateToken creates a signed JWT for an identity. The hub itself
// never calls this at runtime; it exists for the seeding tool, the
// probe CLI and the tests.
func (d *TokenDirectory) GenerateToken(identity domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		Username: identity.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.secret)
}
