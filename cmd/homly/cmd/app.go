package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/homly/cart"
	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/events"
	"github.com/jmcleod/homly/session"
	"github.com/jmcleod/homly/storage"
	bboltstorage "github.com/jmcleod/homly/storage/bbolt"
	"github.com/jmcleod/homly/storage/postgres"
)

// app is one client run: store, bus, transport, session and cart wired
// together the way every command needs them.
type app struct {
	store   storage.Store
	bus     *events.Bus
	client  *client.Client
	session *session.Manager
	cart    *cart.Cart

	closeStore func() error
}

type closingStore interface {
	storage.Store
	Close() error
}

// openStore opens the local store for the configured profile: PostgreSQL
// when HOMLY_DATABASE_URL is set, the bbolt file under the data directory
// otherwise. Values are sealed when HOMLY_STORE_SECRET is set.
func openStore(ctx context.Context) (closingStore, error) {
	var key []byte
	if cfg.StoreSecret != "" {
		k, err := storage.DeriveKey(cfg.StoreSecret, cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("deriving store key: %w", err)
		}
		key = k
	}

	if cfg.DatabaseURL != "" {
		var opts []postgres.Option
		if key != nil {
			opts = append(opts, postgres.WithKey(key))
		}
		s, err := postgres.NewStoreFromDSN(ctx, cfg.DatabaseURL, cfg.Profile, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return s, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	var opts []bboltstorage.Option
	if key != nil {
		opts = append(opts, bboltstorage.WithKey(key))
	}
	s, err := bboltstorage.NewStoreFromFile(cfg.StorePath(), cfg.Profile, &bolt.Options{Timeout: 2 * time.Second}, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}
	return s, nil
}

// openApp wires the client and bootstraps the session. The cart starts on
// the bootstrapped user and follows later identity changes.
func openApp(ctx context.Context) (*app, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, bus: events.NewBus(), closeStore: store.Close}

	a.client, err = client.New(cfg.APIBaseURL,
		client.WithBus(a.bus),
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.session, err = session.New(a.client, store, a.bus,
		session.WithLogger(logger),
		session.WithVerifyTimeout(cfg.VerifyTimeout),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client.SetTokenSource(a.session)

	s := a.session.Bootstrap(ctx)
	a.cart, err = cart.New(store, s.UserID(), a.bus, cart.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	if a.cart != nil {
		a.cart.Close()
	}
	if a.session != nil {
		a.session.Close()
	}
	return a.closeStore()
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
