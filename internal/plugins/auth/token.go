package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vetrova/vaultkeep/internal/apperror"
)

// resetClaims carries the user ID inside a signed password-reset token.
type resetClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// ResetTokenSigner issues and verifies signed password-reset tokens. It is
// constructed once at startup with the application secret and injected into
// the auth service -- no package-level signer state.
type ResetTokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewResetTokenSigner creates a signer with the given secret and token TTL.
func NewResetTokenSigner(secret string, ttl time.Duration) *ResetTokenSigner {
	return &ResetTokenSigner{secret: []byte(secret), ttl: ttl}
}

// Sign issues a reset token for the given user, valid for the signer's TTL.
func (s *ResetTokenSigner) Sign(userID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, resetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing reset token: %w", err)
	}

	return signed, nil
}

// Verify checks a reset token's signature and expiry and returns the user
// ID it was issued for. Any failure maps to a single client-safe error so
// the response doesn't reveal why a token was rejected.
func (s *ResetTokenSigner) Verify(tokenString string) (string, error) {
	claims := &resetClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return "", apperror.NewUnauthorized("invalid or expired reset token")
	}

	return claims.UserID, nil
}
