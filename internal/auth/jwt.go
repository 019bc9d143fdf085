// Package auth verifies bearer tokens issued by the account service and turns them into a
// models.Identity.
package auth

import (
	"fmt"
	"time"

	"bookstore/internal/apperror"
	"bookstore/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the token claims the account service signs
type Claims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret
type Verifier struct {
	secret []byte
}

// NewVerifier creates a new token verifier
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses token and returns the caller identity. Tokens must carry an expiry.
func (v *Verifier) Verify(token string) (models.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Identity{}, apperror.Unauthorized("Invalid or expired token").Wrap(err)
	}

	if claims.UserID <= 0 {
		return models.Identity{}, apperror.Unauthorized("Invalid or expired token")
	}
	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Identity{}, apperror.Unauthorized("Invalid or expired token").Wrap(err)
	}

	return models.Identity{UserID: claims.UserID, Role: role}, nil
}

// Issue signs a token for identity valid for ttl
func (v *Verifier) Issue(identity models.Identity, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: identity.UserID,
		Email:  email,
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
