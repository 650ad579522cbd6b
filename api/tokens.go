package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the bearer token and cookie lifetime.
const DefaultTokenTTL = 7 * 24 * time.Hour

const tokenIssuer = "homly"

// tokenClaims is the payload of a Homly bearer token. The user id travels
// in the "id" claim, which is what storefront clients decode.
type tokenClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// tokenManager issues and verifies HS256 bearer tokens.
type tokenManager struct {
	secret []byte
	ttl    time.Duration
}

func newTokenManager(secret []byte, ttl time.Duration) (*tokenManager, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &tokenManager{secret: secret, ttl: ttl}, nil
}

// issue signs a token for userID and returns it with its expiry.
func (m *tokenManager) issue(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)
	claims := tokenClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// verify checks the signature, algorithm and expiry of a token.
func (m *tokenManager) verify(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}
