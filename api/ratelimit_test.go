package api

import (
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffLimiter(t *testing.T) {
	policy := backoffPolicy{maxFailures: 3, baseLockout: time.Minute, maxLockout: 4 * time.Minute, expiry: time.Hour}

	t.Run("allows before threshold", func(t *testing.T) {
		rl := newBackoffLimiter(policy)
		for i := 0; i < policy.maxFailures-1; i++ {
			rl.recordFailure("a@example.com")
			blocked, _ := rl.check("a@example.com")
			assert.False(t, blocked)
		}
	})

	t.Run("blocks at threshold", func(t *testing.T) {
		rl := newBackoffLimiter(policy)
		for i := 0; i < policy.maxFailures; i++ {
			rl.recordFailure("a@example.com")
		}
		blocked, retryAfter := rl.check("a@example.com")
		require.True(t, blocked)
		assert.Greater(t, retryAfter, time.Duration(0))
		assert.LessOrEqual(t, retryAfter, time.Minute)
	})

	t.Run("backoff doubles and caps", func(t *testing.T) {
		rl := newBackoffLimiter(policy)
		for i := 0; i < policy.maxFailures; i++ {
			rl.recordFailure("a@example.com")
		}
		_, first := rl.check("a@example.com")
		rl.recordFailure("a@example.com")
		_, second := rl.check("a@example.com")
		assert.Greater(t, second, first)

		for i := 0; i < 10; i++ {
			rl.recordFailure("a@example.com")
		}
		_, capped := rl.check("a@example.com")
		assert.LessOrEqual(t, capped, policy.maxLockout)
	})

	t.Run("success resets", func(t *testing.T) {
		rl := newBackoffLimiter(policy)
		for i := 0; i < policy.maxFailures; i++ {
			rl.recordFailure("a@example.com")
		}
		rl.recordSuccess("a@example.com")
		blocked, _ := rl.check("a@example.com")
		assert.False(t, blocked)
	})

	t.Run("keys are isolated", func(t *testing.T) {
		rl := newBackoffLimiter(policy)
		for i := 0; i < policy.maxFailures; i++ {
			rl.recordFailure("a@example.com")
		}
		blocked, _ := rl.check("b@example.com")
		assert.False(t, blocked)
	})

	t.Run("sweep removes expired", func(t *testing.T) {
		rl := newBackoffLimiter(policy)
		rl.recordFailure("a@example.com")
		rl.attempts["a@example.com"].lastFailure = time.Now().Add(-2 * time.Hour)
		rl.sweep()
		assert.Empty(t, rl.attempts)
	})
}

func TestWindowLimiter(t *testing.T) {
	rl := newWindowLimiter(100*time.Millisecond, 3, time.Minute)
	rl.record()
	rl.record()
	blocked, _ := rl.check()
	assert.False(t, blocked)

	time.Sleep(150 * time.Millisecond)
	rl.record()
	blocked, _ = rl.check()
	assert.False(t, blocked, "events outside the window do not count")

	rl.record()
	rl.record()
	blocked, retryAfter := rl.check()
	assert.True(t, blocked)
	assert.Greater(t, retryAfter, 50*time.Second)
}

func TestLimitersLoginOrder(t *testing.T) {
	l := newLimiters()
	for i := 0; i < emailPolicy.maxFailures; i++ {
		l.loginFailed("192.0.2.1", "a@example.com")
	}
	blocked, _, scope := l.checkLogin("192.0.2.1", "a@example.com")
	require.True(t, blocked)
	assert.Equal(t, "email", scope)

	blocked, _, _ = l.checkLogin("192.0.2.1", "b@example.com")
	assert.False(t, blocked, "other accounts from the same ip are still allowed")

	l.loginSucceeded("192.0.2.1", "a@example.com")
	blocked, _, _ = l.checkLogin("192.0.2.1", "a@example.com")
	assert.False(t, blocked)
}

func TestRetryAfterString(t *testing.T) {
	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "1", retryAfterString(300*time.Millisecond))
	assert.Equal(t, "90", retryAfterString(90*time.Second))
}

func TestExtractClientIPWithProxies(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		proxies    []netip.Prefix
		want       string
	}{
		{name: "remote ipv4", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "remote ipv6", remoteAddr: "[::1]:8080", want: "::1"},
		{name: "unparsable remote", remoteAddr: "not-a-hostport", want: ""},
		{
			name: "headers ignored without trusted proxies", remoteAddr: "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.25"},
			want:    "10.0.0.1",
		},
		{
			name: "trusted proxy honors xff", remoteAddr: "10.0.0.1:80",
			headers: map[string]string{"X-Forwarded-For": "unknown, 198.51.100.25, 203.0.113.9"},
			proxies: trusted, want: "198.51.100.25",
		},
		{
			name: "trusted proxy honors forwarded", remoteAddr: "10.0.0.1:80",
			headers: map[string]string{"Forwarded": `for="[2001:db8::1]:4711";proto=https`},
			proxies: trusted, want: "2001:db8::1",
		},
		{
			name: "trusted proxy honors x-real-ip", remoteAddr: "10.0.0.1:80",
			headers: map[string]string{"X-Real-IP": "203.0.113.11"},
			proxies: trusted, want: "203.0.113.11",
		},
		{
			name: "untrusted peer cannot spoof", remoteAddr: "192.168.1.1:80",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.25"},
			proxies: trusted, want: "192.168.1.1",
		},
		{
			name: "trusted proxy without headers", remoteAddr: "10.0.0.1:80",
			proxies: trusted, want: "10.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: make(http.Header)}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIPWithProxies(r, tt.proxies))
		})
	}
}

func TestWithTrustedProxies(t *testing.T) {
	_, err := WithTrustedProxies([]string{"10.0.0.0/8", "172.16.0.0/12"})
	require.NoError(t, err)
	_, err = WithTrustedProxies([]string{"10.0.0.1", "::1"})
	require.NoError(t, err, "bare addresses are single-host prefixes")
	_, err = WithTrustedProxies([]string{"10.0.0.0/8", "garbage"})
	require.Error(t, err)
}
