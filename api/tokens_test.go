package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssueVerify(t *testing.T) {
	m, err := newTokenManager([]byte("0123456789abcdef0123"), time.Hour)
	require.NoError(t, err)

	raw, expiresAt, err := m.issue("user-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, tokenIssuer, claims.Issuer)

	raw2, _, err := m.issue("user-1")
	require.NoError(t, err)
	claims2, err := m.verify(raw2)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, claims2.ID, "every token has its own id")
}

func TestTokenRejected(t *testing.T) {
	secret := []byte("0123456789abcdef0123")
	m, err := newTokenManager(secret, time.Hour)
	require.NoError(t, err)

	sign := func(method jwt.SigningMethod, key any, claims tokenClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() tokenClaims {
		now := time.Now()
		return tokenClaims{
			UserID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti",
				Issuer:    tokenIssuer,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := valid()
	noExpiry.ExpiresAt = nil
	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"
	noUser := valid()
	noUser.UserID = ""

	tests := []struct {
		name string
		raw  string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("another-secret-entirely"), valid())},
		{"wrong algorithm", sign(jwt.SigningMethodHS512, secret, valid())},
		{"none algorithm", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())},
		{"expired", sign(jwt.SigningMethodHS256, secret, expired)},
		{"no expiry", sign(jwt.SigningMethodHS256, secret, noExpiry)},
		{"wrong issuer", sign(jwt.SigningMethodHS256, secret, wrongIssuer)},
		{"no user id", sign(jwt.SigningMethodHS256, secret, noUser)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.verify(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestNewTokenManager(t *testing.T) {
	_, err := newTokenManager([]byte("short"), 0)
	require.Error(t, err)

	m, err := newTokenManager([]byte("0123456789abcdef"), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, m.ttl)
}
