// ABOUTME: Short-lived JWT credentials for the session auth handshake
// ABOUTME: Tokens are minted fresh per connection attempt, never cached

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// CredentialFunc produces a fresh credential token for one connection
// attempt. The session channel calls it on every connect and reconnect;
// implementations must not hand back a token cached from a prior attempt.
type CredentialFunc func(ctx context.Context) (string, error)

// TokenSource mints short-lived HS256 JWTs for the auth handshake.
type TokenSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
}

// NewTokenSource creates a token source for the given subject. ttl should be
// short: tokens outlive a single connection attempt only by accident.
func NewTokenSource(secret []byte, subject string, ttl time.Duration) *TokenSource {
	return &TokenSource{secret: secret, subject: subject, ttl: ttl}
}

// Token mints a fresh credential. Satisfies CredentialFunc.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": s.subject,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and extracts the subject claim. Used by tests and
// by backends that share the secret.
func Verify(secret []byte, tokenString string) (subject string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}
