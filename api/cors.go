package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS allows credentialed cross-origin calls from allowedOrigins. "*"
// allows every origin; the request origin is echoed back since credentialed
// responses cannot carry a wildcard. Preflights are answered here and
// refused origins get no Access-Control headers. An empty list allows no
// origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
			opts.AllowedOrigins = nil
			break
		}
		if o != "" {
			opts.AllowedOrigins = append(opts.AllowedOrigins, o)
		}
	}
	if opts.AllowOriginFunc == nil && len(opts.AllowedOrigins) == 0 {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return false }
	}
	return cors.Handler(opts)
}
