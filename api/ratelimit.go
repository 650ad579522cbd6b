package api

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// backoffPolicy configures a backoffLimiter.
type backoffPolicy struct {
	// maxFailures is the number of consecutive failures before lockout begins.
	maxFailures int
	// baseLockout is the lockout after maxFailures; it doubles with every
	// further failure up to maxLockout.
	baseLockout time.Duration
	maxLockout  time.Duration
	// expiry is how long after the last failure a record is forgotten.
	expiry time.Duration
}

var (
	// Per email address. Keys are normalized emails.
	emailPolicy = backoffPolicy{maxFailures: 5, baseLockout: time.Minute, maxLockout: 15 * time.Minute, expiry: time.Hour}
	// Per client IP, across all accounts.
	ipPolicy = backoffPolicy{maxFailures: 20, baseLockout: time.Minute, maxLockout: 30 * time.Minute, expiry: time.Hour}
	// Registrations per client IP. Every request counts, not only failures,
	// since each one costs a bcrypt hash.
	registerIPPolicy = backoffPolicy{maxFailures: 5, baseLockout: 5 * time.Minute, maxLockout: time.Hour, expiry: time.Hour}
)

type attemptRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// backoffLimiter tracks failures per key and enforces exponential backoff.
type backoffLimiter struct {
	policy   backoffPolicy
	mu       sync.Mutex
	attempts map[string]*attemptRecord
}

func newBackoffLimiter(policy backoffPolicy) *backoffLimiter {
	return &backoffLimiter{
		policy:   policy,
		attempts: make(map[string]*attemptRecord),
	}
}

// check returns true if key is currently locked out, along with how long
// the caller should wait.
func (rl *backoffLimiter) check(key string) (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		return false, 0
	}
	if time.Since(rec.lastFailure) > rl.policy.expiry {
		delete(rl.attempts, key)
		return false, 0
	}
	if time.Now().Before(rec.lockedUntil) {
		return true, time.Until(rec.lockedUntil)
	}
	return false, 0
}

// recordFailure increments the failure counter and applies exponential
// backoff once maxFailures is reached.
func (rl *backoffLimiter) recordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok {
		rec = &attemptRecord{}
		rl.attempts[key] = rec
	}
	rec.failures++
	rec.lastFailure = time.Now()

	if rec.failures >= rl.policy.maxFailures {
		lockout := rl.policy.baseLockout
		for i := 0; i < rec.failures-rl.policy.maxFailures; i++ {
			lockout *= 2
			if lockout > rl.policy.maxLockout {
				lockout = rl.policy.maxLockout
				break
			}
		}
		rec.lockedUntil = rec.lastFailure.Add(lockout)
	}
}

// recordSuccess forgets key.
func (rl *backoffLimiter) recordSuccess(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

// sweep removes expired records.
func (rl *backoffLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, rec := range rl.attempts {
		if now.Sub(rec.lastFailure) > rl.policy.expiry {
			delete(rl.attempts, key)
		}
	}
}

// windowLimiter locks everyone out for a while once too many events
// happen within a sliding window.
type windowLimiter struct {
	window  time.Duration
	limit   int
	lockout time.Duration

	mu          sync.Mutex
	events      []time.Time
	lockedUntil time.Time
}

func newWindowLimiter(window time.Duration, limit int, lockout time.Duration) *windowLimiter {
	return &windowLimiter{window: window, limit: limit, lockout: lockout}
}

func (rl *windowLimiter) check() (blocked bool, retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Now().Before(rl.lockedUntil) {
		return true, time.Until(rl.lockedUntil)
	}
	return false, 0
}

func (rl *windowLimiter) record() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.events = trimWindow(append(rl.events, now), now, rl.window)
	if len(rl.events) >= rl.limit {
		rl.lockedUntil = now.Add(rl.lockout)
	}
}

// limiters groups the login and registration throttles.
type limiters struct {
	email          *backoffLimiter
	ip             *backoffLimiter
	global         *windowLimiter
	registerIP     *backoffLimiter
	registerGlobal *windowLimiter
}

func newLimiters() *limiters {
	return &limiters{
		email:          newBackoffLimiter(emailPolicy),
		ip:             newBackoffLimiter(ipPolicy),
		global:         newWindowLimiter(time.Minute, 100, 5*time.Minute),
		registerIP:     newBackoffLimiter(registerIPPolicy),
		registerGlobal: newWindowLimiter(time.Minute, 50, 5*time.Minute),
	}
}

// checkLogin applies the global, IP and email limits in that order.
func (l *limiters) checkLogin(ip, email string) (blocked bool, retryAfter time.Duration, scope string) {
	if blocked, retry := l.global.check(); blocked {
		return true, retry, "global"
	}
	if blocked, retry := l.ip.check(ip); blocked {
		return true, retry, "ip"
	}
	if email != "" {
		if blocked, retry := l.email.check(email); blocked {
			return true, retry, "email"
		}
	}
	return false, 0, ""
}

func (l *limiters) loginFailed(ip, email string) {
	l.global.record()
	l.ip.recordFailure(ip)
	if email != "" {
		l.email.recordFailure(email)
	}
}

func (l *limiters) loginSucceeded(ip, email string) {
	l.ip.recordSuccess(ip)
	l.email.recordSuccess(email)
}

func (l *limiters) sweep() {
	l.email.sweep()
	l.ip.sweep()
	l.registerIP.sweep()
}

// writeRateLimited sends a 429 Too Many Requests response.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration, msg string) {
	w.Header().Set("Retry-After", retryAfterString(retryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
}

func retryAfterString(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// ---------------------------------------------------------------------------
// Client IP
// ---------------------------------------------------------------------------

func (a *API) extractClientIP(r *http.Request) string {
	return extractClientIPWithProxies(r, a.trustedProxies)
}

// extractClientIPWithProxies returns the best-effort client IP address.
//
// Proxy headers (X-Forwarded-For, Forwarded, X-Real-IP) are honored only
// when the direct peer falls within one of trustedProxies; otherwise
// RemoteAddr is used.
func extractClientIPWithProxies(r *http.Request, trustedProxies []netip.Prefix) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	proxyTrusted := false
	if len(trustedProxies) > 0 && remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}
	if !proxyTrusted {
		return remoteIP
	}

	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip, ok := parseIPCandidate(part); ok {
				return ip
			}
		}
	}
	if fwd := strings.TrimSpace(r.Header.Get("Forwarded")); fwd != "" {
		for _, elem := range strings.Split(fwd, ",") {
			for _, param := range strings.Split(elem, ";") {
				param = strings.TrimSpace(param)
				if len(param) > 4 && strings.EqualFold(param[:4], "for=") {
					if ip, ok := parseIPCandidate(param[4:]); ok {
						return ip
					}
				}
			}
		}
	}
	if ip, ok := parseIPCandidate(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return remoteIP
}

func parseIPCandidate(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "\"")
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	// Drop the zone, e.g. fe80::1%eth0.
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String(), true
	}
	return "", false
}
