package session

import "errors"

var (
	// ErrNoToken is returned by operations that need a bearer token when
	// none is held.
	ErrNoToken = errors.New("no session token")
	// ErrNoIdentity is returned when an authentication response carries no
	// user record.
	ErrNoIdentity = errors.New("response carried no identity")
	// ErrClosed is returned by operations on a closed manager.
	ErrClosed = errors.New("session manager closed")
)
