// Package events provides the process-wide signals that let the transport
// report authorization failures and the session manager announce identity
// changes without either holding a reference to the other.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Signal is a typed, synchronous publish/subscribe channel. The zero value is
// ready to use. Subscribers are invoked in subscription order on the
// publisher's goroutine.
type Signal[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once.
func (s *Signal[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers evt to every current subscriber. Subscribers added or
// removed during delivery take effect from the next Publish.
func (s *Signal[T]) Publish(evt T) {
	s.mu.RLock()
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(evt)
	}
}

// Subscribers returns the number of registered subscribers.
func (s *Signal[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Unauthorized is broadcast by the transport when any request is rejected
// with an authorization failure.
type Unauthorized struct {
	Method string
	// Path is the API-relative path of the rejected request.
	Path string
	URL  string
	// Token is the TokenFingerprint of the bearer the request carried, ""
	// when it carried none.
	Token string
	At    time.Time
}

// TokenFingerprint returns a short digest identifying token without
// revealing it. The empty token has the empty fingerprint.
func TokenFingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// ChangeReason identifies what caused an identity change.
type ChangeReason string

const (
	ReasonLogin        ChangeReason = "login"
	ReasonRegister     ChangeReason = "register"
	ReasonGoogleLogin  ChangeReason = "google_login"
	ReasonLogout       ChangeReason = "logout"
	ReasonUnauthorized ChangeReason = "unauthorized"
)

// IdentityChanged is broadcast by the session manager after the persisted
// snapshot has been rewritten. UserID is "guest" when no one is signed in.
type IdentityChanged struct {
	UserID string
	Reason ChangeReason
}

// Bus groups the signals shared by one client process.
type Bus struct {
	Unauthorized    Signal[Unauthorized]
	IdentityChanged Signal[IdentityChanged]
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}
