package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/homly/storage"
)

func newTestPool(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("HOMLY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HOMLY_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not ensure schema: %v", err)
	}

	// Clean tables for test isolation.
	pool.Exec(ctx, "DELETE FROM homly_kv") //nolint:errcheck

	return pool, func() {
		pool.Exec(ctx, "DELETE FROM homly_kv") //nolint:errcheck
		pool.Close()
	}
}

func TestPostgresStore(t *testing.T) {
	pool, cleanup := newTestPool(t)
	defer cleanup()

	s, err := NewStore(pool, "default")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put(storage.KeyAuthToken, "tok"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get(storage.KeyAuthToken)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "tok" {
			t.Errorf("expected %q, got %q", "tok", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := s.Put(storage.KeyAuthToken, "tok2"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, _ := s.Get(storage.KeyAuthToken)
		if got != "tok2" {
			t.Errorf("expected %q, got %q", "tok2", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get("missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		if err := s.Delete(storage.KeyAuthToken); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := s.Delete(storage.KeyAuthToken); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
	})

	t.Run("ProfilesAreIsolated", func(t *testing.T) {
		other, err := NewStore(pool, "work")
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if err := other.Put(storage.KeyUserInfo, `{"_id":"w1"}`); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := s.Get(storage.KeyUserInfo); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound in default profile, got %v", err)
		}
		keys, err := other.Keys()
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		if len(keys) != 1 || keys[0] != storage.KeyUserInfo {
			t.Errorf("unexpected keys %v", keys)
		}
	})
}

func TestPostgresBatch(t *testing.T) {
	pool, cleanup := newTestPool(t)
	defer cleanup()

	s, err := NewStore(pool, "default")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	t.Run("Commit", func(t *testing.T) {
		err := s.Batch(func(tx storage.BatchTx) error {
			if err := tx.Put(storage.KeyUserInfo, `{"_id":"u1"}`); err != nil {
				return err
			}
			return tx.Put(storage.KeyAuthToken, "tok")
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}
		if _, err := s.Get(storage.KeyUserInfo); err != nil {
			t.Errorf("userInfo missing after commit: %v", err)
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Batch(func(tx storage.BatchTx) error {
			if err := tx.Delete(storage.KeyUserInfo); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := s.Get(storage.KeyUserInfo); err != nil {
			t.Errorf("userInfo should survive a rolled back batch: %v", err)
		}
	})
}

func TestPostgresSealed(t *testing.T) {
	pool, cleanup := newTestPool(t)
	defer cleanup()

	key, err := storage.DeriveKey("secret", "default")
	if err != nil {
		t.Fatalf("DeriveKey failed: %v", err)
	}
	sealed, err := NewStore(pool, "default", WithKey(key))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := sealed.Put(storage.KeyAuthToken, "tok"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := sealed.Get(storage.KeyAuthToken)
	if err != nil || got != "tok" {
		t.Fatalf("expected sealed round trip, got %q, %v", got, err)
	}

	otherKey, _ := storage.DeriveKey("other", "default")
	wrong, _ := NewStore(pool, "default", WithKey(otherKey))
	if _, err := wrong.Get(storage.KeyAuthToken); !errors.Is(err, storage.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt with wrong key, got %v", err)
	}
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil, ""); err == nil {
		t.Error("expected error for empty profile")
	}
	if _, err := NewStore(nil, "p", WithKey([]byte("short"))); err == nil {
		t.Error("expected error for short key")
	}
}
