package api

import (
	"context"
	"sync"
	"time"
)

// RevocationStore remembers signed-out tokens until they would have
// expired anyway. Tokens are identified by their jti claim.
type RevocationStore interface {
	// Revoke marks tokenID as unusable until expiresAt.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	// IsRevoked reports whether tokenID was revoked and has not expired.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocationStore is a thread-safe in-memory RevocationStore.
// Revocations are lost on server restart.
type MemoryRevocationStore struct {
	mu   sync.RWMutex
	data map[string]time.Time
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)

// NewMemoryRevocationStore creates an empty in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{data: make(map[string]time.Time)}
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	if !time.Now().Before(expiresAt) {
		return nil
	}
	s.mu.Lock()
	s.data[tokenID] = expiresAt
	s.mu.Unlock()
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	expiresAt, ok := s.data[tokenID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiresAt) {
		s.mu.Lock()
		delete(s.data, tokenID)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// sweep drops expired entries.
func (s *MemoryRevocationStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.data {
		if now.After(exp) {
			delete(s.data, id)
		}
	}
}
