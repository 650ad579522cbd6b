// Package storage provides the persistent key/value store that holds the
// session snapshot and per-user carts. A store is scoped to one profile, the
// equivalent of a browser profile's local storage.
package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("key not found")
	// ErrCorrupt is returned by Get when a stored value cannot be decoded or
	// unsealed.
	ErrCorrupt = errors.New("stored value is corrupt")
)

// Well-known keys.
const (
	KeyUserInfo   = "userInfo"
	KeyAuthToken  = "authToken"
	KeyLegacyCart = "cart"
)

// CartKey returns the key holding the cart of the given user id.
func CartKey(userID string) string {
	return "cart_" + userID
}

// BatchTx provides writes within an atomic batch.
type BatchTx interface {
	Put(key, value string) error
	Delete(key string) error
}

// Store is a string key/value store. Delete of an absent key is not an error.
type Store interface {
	Get(key string) (string, error)
	Put(key, value string) error
	Delete(key string) error
	Keys() ([]string, error)
	// Batch runs fn atomically. If fn returns an error none of its writes
	// are applied.
	Batch(fn func(tx BatchTx) error) error
}

// DeleteAll removes every given key in a single batch.
func DeleteAll(s Store, keys ...string) error {
	return s.Batch(func(tx BatchTx) error {
		for _, k := range keys {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
