package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read from a bearer token without the server's
// signing key. It is informational only and never used to trust a session.
type TokenInfo struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token's expiry is known and before now.
func (ti TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && now.After(ti.ExpiresAt)
}

type tokenClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// InspectToken decodes the claims of a JWT bearer token without verifying
// its signature.
func InspectToken(token string) (TokenInfo, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenInfo{}, fmt.Errorf("decoding token: %w", err)
	}
	info := TokenInfo{UserID: claims.UserID}
	if info.UserID == "" {
		info.UserID = claims.Subject
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
