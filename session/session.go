// Package session reconciles the locally persisted session snapshot with the
// server and owns the signed-in identity for the lifetime of a client.
//
// A Manager restores the snapshot optimistically, verifies it against the
// profile endpoint in the background, and resets itself whenever the
// transport reports an authorization failure on the shared events.Bus.
package session

import (
	"github.com/jmcleod/homly/identity"
)

// Status is the resolution state of a session.
type Status int

const (
	// Unresolved is the state before Bootstrap runs.
	Unresolved Status = iota
	// Resolving is entered once, while Bootstrap runs.
	Resolving
	// Authenticated means an identity is present.
	Authenticated
	// Anonymous means no one is signed in.
	Anonymous
)

func (s Status) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is Authenticated or Anonymous.
func (s Status) Terminal() bool {
	return s == Authenticated || s == Anonymous
}

// Session is a point-in-time copy of the manager state.
type Session struct {
	Identity *identity.Identity
	Status   Status
	// Provisional is set while an identity restored from the snapshot has
	// not yet been confirmed or rejected by the server.
	Provisional bool
	Generation  uint64
}

// UserID returns the id carts and other per-user state are keyed by.
func (s Session) UserID() string {
	return s.Identity.UserID()
}
