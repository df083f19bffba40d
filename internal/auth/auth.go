package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

// Claims are the identity claims carried in a credential token. The
// same token authorizes API requests and the push channel.
type Claims struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *Claims) User() model.User {
	return model.User{ID: c.ID, Email: c.Email}
}

// Issue signs a token for the given user, valid for ttl.
func Issue(secret string, user model.User, ttl time.Duration) (string, error) {
	claims := &Claims{
		ID:    user.ID,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify parses and validates a token against the signing secret.
// Used server-side; expired or tampered tokens come back unauthorized.
func Verify(secret, token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperrors.ErrUnauthorized
	}
	return claims, nil
}

// Decode extracts claims without verifying the signature. The client
// has no signing secret; it only needs the identity and the expiry.
func Decode(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("malformed credential token: %w", err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.ErrTokenExpired
	}
	return claims, nil
}
