// Package api is a reference implementation of the Homly storefront API
// subset the client uses: accounts, Google sign-in and the read-only
// catalog. It exists so the client, session and CLI can be exercised
// end to end without the production backend.
package api

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/homly/storage"
)

// DefaultBasePath is where cmd/homly mounts the router.
const DefaultBasePath = "/api"

const sweepInterval = time.Minute

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo           *repository
	tokens         *tokenManager
	revoked        RevocationStore
	google         GoogleVerifier
	limits         *limiters
	audit          *auditLogger
	trustedProxies []netip.Prefix
	basePath       string

	logger  *slog.Logger
	alertFn AlertFunc
	ttl     time.Duration
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *API) {
		a.ttl = ttl
	}
}

// WithGoogleVerifier enables POST /users/google.
func WithGoogleVerifier(v GoogleVerifier) Option {
	return func(a *API) {
		a.google = v
	}
}

// WithRevocationStore replaces the in-memory revocation store, e.g. with a
// RedisRevocationStore shared by several replicas.
func WithRevocationStore(s RevocationStore) Option {
	return func(a *API) {
		a.revoked = s
	}
}

// WithAlertFunc sets the callback invoked on login-failure and
// rejected-token spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithBasePath sets the path the router is mounted under. It is only used
// to point the documentation UIs at the OpenAPI document.
func WithBasePath(p string) Option {
	return func(a *API) {
		a.basePath = strings.TrimRight(p, "/")
	}
}

// WithTrustedProxies lists the proxies whose forwarding headers are
// believed when determining the client IP. Entries are CIDR prefixes or
// bare addresses.
func WithTrustedProxies(entries []string) (Option, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", e)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return func(a *API) {
		a.trustedProxies = prefixes
	}, nil
}

// New creates an API keeping its records in store and signing tokens with
// secret.
func New(store storage.Store, secret []byte, opts ...Option) (*API, error) {
	if store == nil {
		return nil, errors.New("api: store is required")
	}
	a := &API{
		repo:     newRepository(store),
		limits:   newLimiters(),
		basePath: DefaultBasePath,
	}
	for _, opt := range opts {
		opt(a)
	}
	tokens, err := newTokenManager(secret, a.ttl)
	if err != nil {
		return nil, err
	}
	a.tokens = tokens
	if a.revoked == nil {
		a.revoked = NewMemoryRevocationStore()
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit = newAuditLogger(a.logger)
	a.audit.metrics = newMetricsCollector(a.alertFn)
	return a, nil
}

// StartSweeper drops expired rate-limit and revocation entries every
// minute until ctx is done.
func (a *API) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.limits.sweep()
				if m, ok := a.revoked.(*MemoryRevocationStore); ok {
					m.sweep()
				}
			}
		}
	}()
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	base := a.basePath
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: base + "/openapi.yaml",
		Path:    strings.TrimPrefix(base+"/docs", "/"),
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: base + "/openapi.yaml",
		Path:    strings.TrimPrefix(base+"/redoc", "/"),
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)

		r.Route("/users", func(r chi.Router) {
			r.Post("/register", a.Register)
			r.Post("/login", a.Login)
			r.Post("/google", a.GoogleLogin)
			r.Post("/logout", a.Logout)

			r.Group(func(r chi.Router) {
				r.Use(a.Protect)
				r.Get("/profile", a.Profile)
				r.Put("/profile", a.UpdateProfile)
				r.Get("/profile/saved-products", a.SavedProducts)
				r.Post("/profile/saved-products", a.ToggleSavedProduct)
				r.With(StaffOnly).Get("/", a.ListUsers)
				r.With(AdminOnly).Put("/{id}", a.UpdateUser)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(a.Protect)
			r.Post("/", a.CreateOrder)
			r.Get("/", a.ListOrders)
			r.Get("/{id}", a.GetOrder)
			r.With(StaffOnly).Put("/{id}", a.UpdateOrderStatus)
			r.With(AdminOnly).Delete("/{id}", a.DeleteOrder)
		})

		r.With(a.OptionalAuth).Get("/products", a.ListProducts)
		r.With(a.OptionalAuth).Get("/products/{id}", a.GetProduct)
		r.Get("/stores", a.ListStores)
		r.Get("/stores/{id}", a.GetStore)
		r.Get("/categories", a.ListCategories)
	})

	return r
}
