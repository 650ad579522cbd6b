// Package bbolt provides a BBolt-backed storage.Store. Each profile lives in
// its own bucket so several profiles can share one database file.
package bbolt

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmcleod/homly/internal/util"
	"github.com/jmcleod/homly/storage"
	"go.etcd.io/bbolt"
)

// Store implements storage.Store backed by a BBolt database.
type Store struct {
	db      *bbolt.DB
	profile string
	key     []byte
	ownsDB  bool
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKey seals every value written with AES-256-GCM under the given 32-byte
// key. Values written without a key remain readable.
func WithKey(key []byte) Option {
	return func(s *Store) {
		s.key = util.CopyBytes(key)
	}
}

// NewStore returns a Store for profile backed by the given BBolt database.
func NewStore(db *bbolt.DB, profile string, opts ...Option) (*Store, error) {
	if profile == "" {
		return nil, errors.New("profile is required")
	}
	s := &Store{db: db, profile: profile}
	for _, opt := range opts {
		opt(s)
	}
	if s.key != nil && len(s.key) != util.AESKeySize {
		return nil, fmt.Errorf("store key must be %d bytes, got %d", util.AESKeySize, len(s.key))
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(profile))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating profile bucket: %w", err)
	}
	return s, nil
}

// NewStoreFromFile opens a BBolt database at the given path and returns a Store
// that closes the database on Close.
func NewStoreFromFile(path, profile string, options *bbolt.Options, opts ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewStore(db, profile, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Close wipes the store key and closes the database if the Store opened it.
func (s *Store) Close() error {
	util.WipeBytes(s.key)
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Profile returns the profile this store is scoped to.
func (s *Store) Profile() string {
	return s.profile
}

func (s *Store) aad(key string) []byte {
	return []byte(s.profile + ":" + key)
}

func (s *Store) encode(key, value string) ([]byte, error) {
	var env *storage.Envelope
	if s.key != nil {
		sealed, err := storage.SealRecord(s.key, []byte(value), s.aad(key))
		if err != nil {
			return nil, err
		}
		env = sealed
	} else {
		env = storage.RawRecord([]byte(value))
	}
	return json.Marshal(env)
}

func (s *Store) decode(key string, data []byte) (string, error) {
	var env storage.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%s: %w", key, storage.ErrCorrupt)
	}
	plain, err := storage.OpenRecord(s.key, &env, s.aad(key))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", key, storage.ErrCorrupt, err)
	}
	defer util.WipeBytes(plain)
	return string(plain), nil
}

func (s *Store) Get(key string) (string, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.profile))
		if b == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		data = util.CopyBytes(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.decode(key, data)
}

func (s *Store) Put(key, value string) error {
	return s.Batch(func(tx storage.BatchTx) error {
		return tx.Put(key, value)
	})
}

func (s *Store) Delete(key string) error {
	return s.Batch(func(tx storage.BatchTx) error {
		return tx.Delete(key)
	})
}

func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(s.profile))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

type boltBatchTx struct {
	store  *Store
	bucket *bbolt.Bucket
}

func (tx *boltBatchTx) Put(key, value string) error {
	data, err := tx.store.encode(key, value)
	if err != nil {
		return err
	}
	return tx.bucket.Put([]byte(key), data)
}

func (tx *boltBatchTx) Delete(key string) error {
	return tx.bucket.Delete([]byte(key))
}

// Batch runs fn inside a single BBolt read-write transaction.
func (s *Store) Batch(fn func(tx storage.BatchTx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(s.profile))
		if err != nil {
			return err
		}
		return fn(&boltBatchTx{store: s, bucket: b})
	})
}
