// Package postgres implements storage.Store backed by PostgreSQL.
//
// Every profile shares the homly_kv table; rows are keyed by (profile, key)
// so the key space matches the BBolt backend's bucket-per-profile layout.
// Envelope fields are stored as individual columns, with nonce and
// ciphertext in native BYTEA.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/homly/internal/util"
	"github.com/jmcleod/homly/storage"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	profile  string
	key      []byte
	ownsPool bool
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKey seals every value written with AES-256-GCM under the given
// 32-byte key.
func WithKey(key []byte) Option {
	return func(s *Store) {
		s.key = util.CopyBytes(key)
	}
}

// NewStore returns a Store for profile backed by the given pgx connection
// pool. The schema must already exist; see EnsureSchema.
func NewStore(pool *pgxpool.Pool, profile string, opts ...Option) (*Store, error) {
	if profile == "" {
		return nil, errors.New("profile is required")
	}
	s := &Store{pool: pool, profile: profile}
	for _, opt := range opts {
		opt(s)
	}
	if s.key != nil && len(s.key) != util.AESKeySize {
		return nil, fmt.Errorf("store key must be %d bytes, got %d", util.AESKeySize, len(s.key))
	}
	return s, nil
}

// NewStoreFromDSN creates a connection pool from a DSN string, ensures the
// schema exists, and returns a Store that closes the pool on Close.
func NewStoreFromDSN(ctx context.Context, dsn, profile string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	s, err := NewStore(pool, profile, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.ownsPool = true
	return s, nil
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Profile returns the profile this store is scoped to.
func (s *Store) Profile() string {
	return s.profile
}

// Close wipes the store key and closes the pool if the Store created it.
func (s *Store) Close() error {
	util.WipeBytes(s.key)
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}

func (s *Store) aad(key string) []byte {
	return []byte(s.profile + ":" + key)
}

func (s *Store) seal(key, value string) (*storage.Envelope, error) {
	if s.key == nil {
		return storage.RawRecord([]byte(value)), nil
	}
	return storage.SealRecord(s.key, []byte(value), s.aad(key))
}

// ---------------------------------------------------------------------------
// Store interface implementation
// ---------------------------------------------------------------------------

func (s *Store) Get(key string) (string, error) {
	var env storage.Envelope
	err := s.pool.QueryRow(context.Background(),
		`SELECT ver, scheme, nonce, ciphertext
		 FROM homly_kv WHERE profile = $1 AND key = $2`,
		s.profile, key).Scan(&env.Ver, &env.Scheme, &env.Nonce, &env.Ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	plain, err := storage.OpenRecord(s.key, &env, s.aad(key))
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", key, storage.ErrCorrupt, err)
	}
	defer util.WipeBytes(plain)
	return string(plain), nil
}

func (s *Store) Put(key, value string) error {
	env, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return putEnvelope(context.Background(), s.pool, s.profile, key, env)
}

func (s *Store) Delete(key string) error {
	_, err := s.pool.Exec(context.Background(),
		`DELETE FROM homly_kv WHERE profile = $1 AND key = $2`, s.profile, key)
	return err
}

func (s *Store) Keys() ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT key FROM homly_kv WHERE profile = $1 ORDER BY key`, s.profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Batch runs fn inside a single PostgreSQL transaction.
func (s *Store) Batch(fn func(tx storage.BatchTx) error) error {
	ctx := context.Background()
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgBatchTx{store: s, tx: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit(ctx)
}

// ---------------------------------------------------------------------------
// BatchTx implementation
// ---------------------------------------------------------------------------

type pgBatchTx struct {
	store *Store
	tx    pgx.Tx
}

var _ storage.BatchTx = (*pgBatchTx)(nil)

func (btx *pgBatchTx) Put(key, value string) error {
	env, err := btx.store.seal(key, value)
	if err != nil {
		return err
	}
	return putEnvelope(context.Background(), btx.tx, btx.store.profile, key, env)
}

func (btx *pgBatchTx) Delete(key string) error {
	_, err := btx.tx.Exec(context.Background(),
		`DELETE FROM homly_kv WHERE profile = $1 AND key = $2`, btx.store.profile, key)
	return err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// execer abstracts both *pgxpool.Pool and pgx.Tx for shared statements.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func putEnvelope(ctx context.Context, q execer, profile, key string, env *storage.Envelope) error {
	_, err := q.Exec(ctx,
		`INSERT INTO homly_kv (profile, key, ver, scheme, nonce, ciphertext, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (profile, key)
		 DO UPDATE SET ver = $3, scheme = $4, nonce = $5, ciphertext = $6, updated_at = now()`,
		profile, key, env.Ver, env.Scheme, env.Nonce, env.Ciphertext)
	return err
}
