package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/homly/api"
	"github.com/jmcleod/homly/config"
	"github.com/jmcleod/homly/identity"
	"github.com/jmcleod/homly/internal/util"
	"github.com/jmcleod/homly/storage"
	bboltstorage "github.com/jmcleod/homly/storage/bbolt"
	"github.com/jmcleod/homly/storage/memory"
	"github.com/jmcleod/homly/storage/postgres"
)

// serverProfile is the storage profile holding the server's records.
const serverProfile = "server"

var (
	port          int
	tlsCert       string
	tlsKey        string
	tlsSelfSigned bool
	devSecret     bool
	seedCatalog   bool
	adminEmail    string
	adminPassword string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the reference storefront API",
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cfg.Server
		if cmd.Flags().Changed("port") {
			sc.Port = port
		}
		if seedCatalog {
			sc.Seed = true
		}
		if sc.JWTSecret == "" && devSecret {
			secret, err := util.RandomHex(32)
			if err != nil {
				return err
			}
			sc.JWTSecret = secret
			logger.Warn("using a random JWT secret, tokens will not survive a restart")
		}
		if err := sc.Validate(); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		store, closeStore, err := openServerStore(ctx, sc)
		if err != nil {
			return err
		}
		defer closeStore()

		opts := []api.Option{
			api.WithLogger(logger),
			api.WithTokenTTL(sc.JWTTTL),
			api.WithAlertFunc(func(ev api.AlertEvent) {
				logger.Warn("security alert", "type", ev.Type, "message", ev.Message, "count", ev.Count, "threshold", ev.Threshold)
			}),
		}
		proxies, err := api.WithTrustedProxies(sc.TrustedProxies)
		if err != nil {
			return err
		}
		opts = append(opts, proxies)

		if sc.RedisAddr != "" {
			rdb, err := api.ConnectRedis(ctx, sc.RedisAddr, sc.RedisPassword)
			if err != nil {
				return err
			}
			defer rdb.Close()
			opts = append(opts, api.WithRevocationStore(api.NewRedisRevocationStore(rdb)))
		}
		if sc.GoogleClientID != "" {
			v, err := api.NewGoogleVerifier(ctx, sc.GoogleClientID)
			if err != nil {
				return err
			}
			opts = append(opts, api.WithGoogleVerifier(v))
		}

		a, err := api.New(store, []byte(sc.JWTSecret), opts...)
		if err != nil {
			return err
		}
		if sc.Seed {
			if err := a.Seed(); err != nil {
				return fmt.Errorf("seeding catalog: %w", err)
			}
		}
		if adminEmail != "" {
			if _, err := a.CreateAccount("Administrator", adminEmail, adminPassword, identity.RoleAdmin, ""); err != nil {
				logger.Warn("admin account not created", "email", adminEmail, "error", err)
			}
		}
		a.StartSweeper(ctx)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(api.CORS(sc.CORSOrigins))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Mount(api.DefaultBasePath, a.Router())

		tlsConfig, err := serverTLSConfig()
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              sc.Addr(),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "Starting server on %s (tls: %t)...\n", server.Addr, tlsConfig != nil)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer scancel()
			if err := server.Shutdown(sctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// openServerStore picks the record store: the bbolt file when a path is
// configured, PostgreSQL when a database URL is, memory otherwise.
func openServerStore(ctx context.Context, sc config.Server) (storage.Store, func() error, error) {
	switch {
	case sc.DBPath != "":
		if err := os.MkdirAll(filepath.Dir(sc.DBPath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		s, err := bboltstorage.NewStoreFromFile(sc.DBPath, serverProfile, &bolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open server storage: %w", err)
		}
		return s, s.Close, nil
	case cfg.DatabaseURL != "":
		s, err := postgres.NewStoreFromDSN(ctx, cfg.DatabaseURL, serverProfile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open server storage: %w", err)
		}
		return s, s.Close, nil
	default:
		logger.Warn("no HOMLY_SERVER_DB or HOMLY_DATABASE_URL, records are kept in memory")
		return memory.NewStore(), func() error { return nil }, nil
	}
}

func serverTLSConfig() (*tls.Config, error) {
	switch {
	case tlsCert != "" && tlsKey != "":
		cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	case tlsSelfSigned:
		cert, err := util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		logger.Info("using self-signed runtime generated certificate for TLS")
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	}
	return nil, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.IntVarP(&port, "port", "p", 5000, "Port to listen on (HOMLY_SERVER_PORT)")
	f.StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	f.StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	f.BoolVar(&tlsSelfSigned, "tls-self-signed", false, "Serve TLS with a generated certificate")
	f.BoolVar(&devSecret, "dev", false, "Generate a JWT secret when HOMLY_JWT_SECRET is unset")
	f.BoolVar(&seedCatalog, "seed", false, "Load the demo catalog on start (HOMLY_SEED)")
	f.StringVar(&adminEmail, "admin-email", "", "Create an admin account with this email")
	f.StringVar(&adminPassword, "admin-password", "", "Password of the admin account")
}
