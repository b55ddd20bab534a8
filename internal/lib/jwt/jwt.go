package jwt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gather_auth/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the identity carried by a verified access token. The role
// reflects the user's role at issue time and is not re-checked against the
// database until the token is reissued.
type AccessClaims struct {
	UserID int64
	Role   models.Role
}

// NewAccessToken signs a short-lived HS256 token for the user.
func NewAccessToken(user models.User, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseAccessToken verifies the signature and expiry of an access token.
// Malformed, expired and badly signed tokens all map to ErrInvalidToken so
// callers cannot tell valid structure from invalid value.
func ParseAccessToken(tokenStr, secret string) (AccessClaims, error) {
	const op = "jwt.ParseAccessToken"

	claims := jwt.MapClaims{}

	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return AccessClaims{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(float64)
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}

	role, ok := claims["role"].(string)
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}

	return AccessClaims{
		UserID: int64(sub),
		Role:   models.Role(role),
	}, nil
}

// NewRandomToken returns a cryptographically random opaque token. Used for
// refresh tokens and one-time tokens; only the hash ever reaches storage.
func NewRandomToken() (string, error) {
	buf := make([]byte, 32)

	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
