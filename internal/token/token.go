// Package token issues and verifies the signed, time-limited access tokens
// (HS256 JWTs) that authenticate API callers. Tokens are never stored server side.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is the parent of every verification failure.
	ErrInvalidToken = errors.New("invalid access token")

	ErrMalformed        = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrSignatureInvalid = fmt.Errorf("%w: signature invalid", ErrInvalidToken)
	ErrExpired          = fmt.Errorf("%w: expired", ErrInvalidToken)

	// ErrEmptySigningKey is returned by New when no key is given.
	ErrEmptySigningKey = errors.New("empty token signing key")
)

// Segments must be canonical base64url, so a token has exactly one accepted spelling.
func init() {
	jwt.DecodeStrict = true
}

// Claims are the JWT claims carried by an access token. Subject is the user ID;
// ID (jti) is unique per token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and verifies access tokens with a process-wide HMAC key.
type Service struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now, letting tests move tokens past their expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. signingKey must stay secret and is never put into tokens.
func New(signingKey []byte, ttl time.Duration, opts ...Option) (*Service, error) {
	if len(signingKey) == 0 {
		return nil, ErrEmptySigningKey
	}

	s := &Service{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Issue returns a signed token for userID that expires after the configured TTL.
func (s *Service) Issue(userID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("in internal/token/token.go/Issue(): error while `token.SignedString()` calling: %w", err)
	}

	return tokenString, nil
}

// Verify checks the token signature and expiry and returns the user ID it was issued for.
// Every failure wraps ErrInvalidToken.
func (s *Service) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.signingKey, nil
		},
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", ErrMalformed
	default:
		return "", ErrSignatureInvalid
	}

	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(s.now(), true) {
		return "", ErrExpired
	}

	if claims.Subject == "" {
		return "", ErrMalformed
	}

	return claims.Subject, nil
}
