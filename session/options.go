package session

import (
	"log/slog"
	"time"
)

// DefaultVerifyTimeout bounds the profile check made by Bootstrap.
const DefaultVerifyTimeout = 5 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithVerifyTimeout overrides how long Bootstrap waits for the profile
// check before keeping the optimistic state.
func WithVerifyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.verifyTimeout = d
		}
	}
}
