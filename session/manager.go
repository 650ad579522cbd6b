package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/events"
	"github.com/jmcleod/homly/identity"
	"github.com/jmcleod/homly/storage"
)

// API is the part of the storefront transport the manager calls.
type API interface {
	Profile(ctx context.Context) (*identity.Identity, error)
	Login(ctx context.Context, req client.LoginRequest) (*client.AuthResult, error)
	Register(ctx context.Context, req client.RegisterRequest) (*client.AuthResult, error)
	GoogleLogin(ctx context.Context, req client.GoogleAuth) (*client.AuthResult, error)
	Logout(ctx context.Context) error
}

var (
	_ API                = (*client.Client)(nil)
	_ client.TokenSource = (*Manager)(nil)
)

// Manager owns the session of one client profile.
//
// Construct it with New, call Bootstrap once, and install it as the
// transport's token source. The bearer token is held in a memguard enclave
// while in memory.
type Manager struct {
	api           API
	store         storage.Store
	bus           *events.Bus
	logger        *slog.Logger
	verifyTimeout time.Duration

	bootOnce    sync.Once
	closeOnce   sync.Once
	ready       chan struct{}
	unsubscribe func()

	mu          sync.RWMutex
	ident       *identity.Identity
	token       *memguard.Enclave
	tokenFP     string
	status      Status
	provisional bool
	gen         generation
	lastErr     string
	closed      bool
}

// New creates a manager in the Unresolved state and subscribes it to
// bus.Unauthorized. A nil bus gets a private one.
func New(api API, store storage.Store, bus *events.Bus, opts ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("session: api is required")
	}
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if bus == nil {
		bus = events.NewBus()
	}
	m := &Manager{
		api:           api,
		store:         store,
		bus:           bus,
		verifyTimeout: DefaultVerifyTimeout,
		ready:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.logger = m.logger.With("component", "session")
	m.unsubscribe = bus.Unauthorized.Subscribe(m.onUnauthorized)
	return m, nil
}

// Bus returns the bus the manager publishes IdentityChanged on.
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// Bootstrap restores the persisted snapshot and verifies it with the server.
// It runs once per manager; later and concurrent calls wait for the first
// run and return its result. Bootstrap never fails: every error path ends
// in Authenticated or Anonymous.
func (m *Manager) Bootstrap(ctx context.Context) Session {
	m.bootOnce.Do(func() { m.bootstrap(ctx) })
	return m.Session()
}

type snapshot struct {
	ident *identity.Identity
	token string
}

func (m *Manager) bootstrap(ctx context.Context) {
	m.mu.Lock()
	if m.status == Unresolved {
		m.status = Resolving
	}
	seen := m.gen.current()
	m.mu.Unlock()
	defer m.finishBootstrap()

	snap := m.loadSnapshot()

	if snap.token == "" {
		if snap.ident != nil {
			m.logger.Warn("discarding user snapshot without token", "user_id", snap.ident.ID)
			if err := m.store.Delete(storage.KeyUserInfo); err != nil {
				m.logger.Error("failed to delete user snapshot", "error", err)
			}
		}
		m.logger.Debug("no stored token, skipping verification")
		return
	}

	m.mu.Lock()
	if m.closed || m.gen.stale(seen) {
		m.mu.Unlock()
		return
	}
	m.ident = snap.ident
	m.setTokenLocked(snap.token)
	if snap.ident != nil {
		m.status = Authenticated
		m.provisional = true
	}
	seen = m.gen.advance()
	m.mu.Unlock()

	m.verify(ctx, seen)
}

// finishBootstrap leaves the Resolving state and releases Ready waiters.
func (m *Manager) finishBootstrap() {
	m.mu.Lock()
	if !m.status.Terminal() {
		if m.ident != nil {
			m.status = Authenticated
		} else {
			m.status = Anonymous
		}
	}
	status, provisional := m.status, m.provisional
	m.mu.Unlock()
	close(m.ready)
	m.logger.Info("session resolved", "status", status.String(), "provisional", provisional)
}

func (m *Manager) loadSnapshot() snapshot {
	var snap snapshot

	raw, err := m.store.Get(storage.KeyUserInfo)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		m.discardOnCorrupt(storage.KeyUserInfo, err)
	default:
		ident, perr := parseIdentity(raw)
		if perr != nil {
			m.discardOnCorrupt(storage.KeyUserInfo, perr)
		} else {
			snap.ident = ident
		}
	}

	tok, err := m.store.Get(storage.KeyAuthToken)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		m.discardOnCorrupt(storage.KeyAuthToken, err)
	default:
		if tok = strings.TrimSpace(tok); validToken(tok) {
			snap.token = tok
		} else {
			m.discardOnCorrupt(storage.KeyAuthToken, fmt.Errorf("%w: unusable token", storage.ErrCorrupt))
		}
	}
	return snap
}

// discardOnCorrupt removes key when err says its value is unreadable. Other
// read errors leave the value in place and only skip it for this run.
func (m *Manager) discardOnCorrupt(key string, err error) {
	if !errors.Is(err, storage.ErrCorrupt) {
		m.logger.Error("failed to read session snapshot", "key", key, "error", err)
		return
	}
	m.logger.Warn("discarding corrupt session snapshot", "key", key, "error", err)
	if derr := m.store.Delete(key); derr != nil {
		m.logger.Error("failed to delete corrupt snapshot", "key", key, "error", derr)
	}
}

func parseIdentity(raw string) (*identity.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "undefined" {
		return nil, fmt.Errorf("%w: user snapshot is %q", storage.ErrCorrupt, raw)
	}
	var ident *identity.Identity
	if err := json.Unmarshal([]byte(raw), &ident); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	if ident == nil || ident.ID == "" {
		return nil, fmt.Errorf("%w: user snapshot has no id", storage.ErrCorrupt)
	}
	return ident, nil
}

func validToken(tok string) bool {
	return tok != "" && tok != "undefined" && tok != "null"
}

type profileResult struct {
	ident *identity.Identity
	err   error
}

// verify races the profile check against the verification timeout. A
// result that arrives after the deadline lands in the buffered channel and
// is dropped.
func (m *Manager) verify(ctx context.Context, seen uint64) {
	vctx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
	defer cancel()

	results := make(chan profileResult, 1)
	go func() {
		ident, err := m.api.Profile(vctx)
		results <- profileResult{ident: ident, err: err}
	}()

	select {
	case r := <-results:
		if err := m.applyProfile(seen, r); err != nil {
			m.logger.Warn("profile verification failed, keeping current session",
				"status", client.StatusCode(err), "error", client.Message(err))
		}
	case <-vctx.Done():
		m.recordFailure(vctx.Err())
		m.logger.Warn("profile verification timed out, keeping current session",
			"timeout", m.verifyTimeout, "error", vctx.Err())
	}
}

// applyProfile writes the outcome of a profile fetch started under seen.
// It returns the error for failures that leave the session unchanged.
func (m *Manager) applyProfile(seen uint64, r profileResult) error {
	if r.err == nil && r.ident == nil {
		r.err = ErrNoIdentity
	}
	switch {
	case r.err == nil:
		return m.confirm(seen, r.ident)
	case client.IsUnauthorized(r.err):
		m.invalidate(seen, events.Unauthorized{Method: "GET", Path: "users/profile", At: time.Now()})
		return nil
	default:
		m.recordFailure(r.err)
		return r.err
	}
}

func (m *Manager) confirm(seen uint64, ident *identity.Identity) error {
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.gen.stale(seen) {
		m.logger.Debug("discarding stale profile result", "seen", seen, "current", m.gen.current())
		return nil
	}
	if err := m.store.Put(storage.KeyUserInfo, string(data)); err != nil {
		return fmt.Errorf("persisting identity: %w", err)
	}
	m.ident = ident.Clone()
	m.status = Authenticated
	m.provisional = false
	m.gen.advance()
	return nil
}

// invalidate resets the session after a 401 on work started under seen.
func (m *Manager) invalidate(seen uint64, ev events.Unauthorized) {
	m.mu.Lock()
	if m.closed || m.gen.stale(seen) {
		m.mu.Unlock()
		return
	}
	changed := m.resetLocked()
	m.mu.Unlock()
	m.afterReset(ev, changed)
}

// onUnauthorized handles the transport's 401 broadcast. Rejected sign-in
// attempts are not session failures and are ignored, as is a rejected
// logout, which clears the session itself. A 401 for a request that carried
// a different bearer than the current one belongs to an earlier session and
// is dropped.
func (m *Manager) onUnauthorized(ev events.Unauthorized) {
	if client.IsCredentialExchange(ev.Path) || ev.Path == client.PathLogout {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if ev.Token != m.tokenFP {
		m.mu.Unlock()
		m.logger.Debug("ignoring 401 for an earlier session", "method", ev.Method, "path", ev.Path)
		return
	}
	changed := m.resetLocked()
	m.mu.Unlock()
	m.afterReset(ev, changed)
}

func (m *Manager) afterReset(ev events.Unauthorized, changed bool) {
	m.logger.Warn("authorization rejected, session reset",
		"method", ev.Method, "path", ev.Path, "changed", changed)
	if changed {
		m.publish(identity.GuestID, events.ReasonUnauthorized)
	}
}

// resetLocked clears memory and the persisted snapshot and reports whether
// an identity or token was actually removed. Memory is cleared even when
// the store write fails.
func (m *Manager) resetLocked() bool {
	changed := m.ident != nil || m.token != nil
	if err := storage.DeleteAll(m.store, storage.KeyUserInfo, storage.KeyAuthToken); err != nil {
		m.logger.Error("failed to clear session snapshot", "error", err)
	}
	m.ident = nil
	m.setTokenLocked("")
	m.status = Anonymous
	m.provisional = false
	m.gen.advance()
	return changed
}

// Login signs in with email and password.
func (m *Manager) Login(ctx context.Context, email, password string) (*identity.Identity, error) {
	res, err := m.api.Login(ctx, client.LoginRequest{Email: strings.TrimSpace(email), Password: password})
	return m.establish(res, err, events.ReasonLogin)
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, req client.RegisterRequest) (*identity.Identity, error) {
	req.Email = strings.TrimSpace(req.Email)
	res, err := m.api.Register(ctx, req)
	return m.establish(res, err, events.ReasonRegister)
}

// GoogleLogin signs in with a Google credential.
func (m *Manager) GoogleLogin(ctx context.Context, auth client.GoogleAuth) (*identity.Identity, error) {
	res, err := m.api.GoogleLogin(ctx, auth)
	return m.establish(res, err, events.ReasonGoogleLogin)
}

// establish persists a successful sign-in and announces it. On failure the
// session is left untouched and the server's message is kept for LastError.
func (m *Manager) establish(res *client.AuthResult, err error, reason events.ChangeReason) (*identity.Identity, error) {
	if err == nil && (res == nil || res.Identity == nil) {
		err = ErrNoIdentity
	}
	if err != nil {
		m.recordFailure(err)
		m.logger.Warn("sign-in failed", "reason", reason,
			"status", client.StatusCode(err), "error", client.Message(err))
		return nil, err
	}

	data, err := json.Marshal(res.Identity)
	if err != nil {
		return nil, fmt.Errorf("encoding identity: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	err = m.store.Batch(func(tx storage.BatchTx) error {
		if err := tx.Put(storage.KeyUserInfo, string(data)); err != nil {
			return err
		}
		if res.Token == "" {
			return tx.Delete(storage.KeyAuthToken)
		}
		return tx.Put(storage.KeyAuthToken, res.Token)
	})
	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("persisting session: %w", err)
	}
	m.ident = res.Identity.Clone()
	m.setTokenLocked(res.Token)
	m.status = Authenticated
	m.provisional = false
	m.lastErr = ""
	m.gen.advance()
	userID := m.ident.UserID()
	m.mu.Unlock()

	m.logger.Info("signed in", "reason", reason, "user_id", userID, "role", res.Identity.Role)
	m.publish(userID, reason)
	return res.Identity.Clone(), nil
}

// Logout tells the server to end the session, then clears the local one.
// The server call carries the current bearer so the server can revoke it;
// its failure is logged and not returned. The local clear always happens
// in memory. The returned error reports a failed store write.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if lerr := m.api.Logout(ctx); lerr != nil {
		m.logger.Warn("server logout failed", "status", client.StatusCode(lerr), "error", client.Message(lerr))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	err := storage.DeleteAll(m.store, storage.KeyUserInfo, storage.KeyAuthToken)
	m.ident = nil
	m.setTokenLocked("")
	m.status = Anonymous
	m.provisional = false
	m.gen.advance()
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to clear session snapshot", "error", err)
		err = fmt.Errorf("clearing session: %w", err)
	}
	m.publish(identity.GuestID, events.ReasonLogout)
	return err
}

// Refresh re-fetches the profile and replaces the identity on success.
// Failures leave the session unchanged; a 401 resets it through the bus.
// A result that arrives after another transition is dropped.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	closed, hasToken, seen := m.closed, m.token != nil, m.gen.current()
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if !hasToken {
		return ErrNoToken
	}
	ident, err := m.api.Profile(ctx)
	if err = m.applyProfile(seen, profileResult{ident: ident, err: err}); err != nil {
		m.logger.Warn("profile refresh failed", "status", client.StatusCode(err), "error", client.Message(err))
		return err
	}
	return nil
}

// SetIdentity replaces the identity after a local profile edit, such as a
// coin balance change reported by another endpoint. The token is kept and
// no IdentityChanged is published.
func (m *Manager) SetIdentity(ident *identity.Identity) error {
	if ident == nil || ident.ID == "" {
		return ErrNoIdentity
	}
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.store.Put(storage.KeyUserInfo, string(data)); err != nil {
		return fmt.Errorf("persisting identity: %w", err)
	}
	m.ident = ident.Clone()
	m.status = Authenticated
	m.gen.advance()
	return nil
}

// Session returns a copy of the current state.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Session{
		Identity:    m.ident.Clone(),
		Status:      m.status,
		Provisional: m.provisional,
		Generation:  m.gen.current(),
	}
}

// Identity returns the signed-in identity, or nil.
func (m *Manager) Identity() *identity.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ident.Clone()
}

// Token returns the bearer token for outgoing requests, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	enclave := m.token
	m.mu.RUnlock()
	if enclave == nil {
		return ""
	}
	buf, err := enclave.Open()
	if err != nil {
		m.logger.Error("failed to open token enclave", "error", err)
		return ""
	}
	defer buf.Destroy()
	return string(buf.Bytes())
}

// LastError returns the message of the most recent failed sign-in or
// verification, or "" after a successful sign-in.
func (m *Manager) LastError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Ready is closed when Bootstrap has finished.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Wait blocks until Bootstrap has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close unsubscribes from the bus and drops the in-memory session, which
// then reads as Anonymous. The persisted snapshot is kept for the next
// process and no IdentityChanged is published.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		m.mu.Lock()
		m.closed = true
		m.ident = nil
		m.setTokenLocked("")
		m.status = Anonymous
		m.provisional = false
		m.gen.advance()
		m.mu.Unlock()
	})
	return nil
}

func (m *Manager) setTokenLocked(tok string) {
	m.tokenFP = events.TokenFingerprint(tok)
	if tok == "" {
		m.token = nil
		return
	}
	m.token = memguard.NewEnclave([]byte(tok))
}

func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	m.lastErr = client.Message(err)
	m.mu.Unlock()
}

// publish must be called without holding m.mu.
func (m *Manager) publish(userID string, reason events.ChangeReason) {
	m.bus.IdentityChanged.Publish(events.IdentityChanged{UserID: userID, Reason: reason})
}
