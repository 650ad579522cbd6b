// Package memory provides a thread-safe in-memory implementation of storage.Store.
package memory

import (
	"sort"
	"sync"

	"github.com/jmcleod/homly/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
// Suitable for testing, demos, and single-process use cases.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Store) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Batch executes fn within a batch transaction. On error, all writes are rolled back.
func (s *Store) Batch(fn func(tx storage.BatchTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]string, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}

	if err := fn(&memoryBatchTx{data: s.data}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type memoryBatchTx struct {
	data map[string]string
}

func (tx *memoryBatchTx) Put(key, value string) error {
	tx.data[key] = value
	return nil
}

func (tx *memoryBatchTx) Delete(key string) error {
	delete(tx.data, key)
	return nil
}
