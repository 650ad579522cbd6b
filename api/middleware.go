package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type contextKey int

const userKey contextKey = iota

// tokenCookieName is the cookie the storefront backend sets alongside the
// token in the response body.
const tokenCookieName = "jwt"

// bearerToken returns the token from the jwt cookie or, failing that, the
// Authorization header.
func bearerToken(r *http.Request) string {
	if c, err := r.Cookie(tokenCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authenticate resolves the request's token to a stored user. The returned
// message is the 401 body when the user is nil.
func (a *API) authenticate(r *http.Request) (*userRecord, *tokenClaims, string) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil, "Not authorized, no token"
	}
	claims, err := a.tokens.verify(raw)
	if err != nil {
		a.audit.logFailure(AuditTokenRejected, r, err.Error())
		return nil, nil, "Not authorized, token failed"
	}
	revoked, err := a.revoked.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		a.audit.logger.Warn("revocation lookup failed", "error", err)
	}
	if revoked {
		a.audit.logFailure(AuditTokenRejected, r, "token revoked", slog.String("user_id", claims.UserID))
		return nil, nil, "Not authorized, token failed"
	}
	user, err := a.repo.userByID(claims.UserID)
	if err != nil {
		return nil, nil, "Not authorized, user not found"
	}
	return user, claims, ""
}

// Protect rejects requests without a valid token with 401 and stores the
// user on the request context.
func (a *API) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, claims, msg := a.authenticate(r)
		if user == nil {
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, &requestUser{user: user, claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth stores the user on the context when the request carries a
// valid token and proceeds as a guest otherwise.
func (a *API) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		if user, claims, _ := a.authenticate(r); user != nil {
			r = r.WithContext(context.WithValue(r.Context(), userKey, &requestUser{user: user, claims: claims}))
		}
		next.ServeHTTP(w, r)
	})
}

// StaffOnly lets admins and store admins through and answers 403
// otherwise. It must run after Protect.
func StaffOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil || !user.Role.IsStaff() {
			writeError(w, http.StatusForbidden, "Not authorized as admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminOnly rejects requests from anyone but admins with 403. It must run
// after Protect.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil || !user.Role.IsAdmin() {
			writeError(w, http.StatusForbidden, "Not authorized as admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestUser struct {
	user   *userRecord
	claims *tokenClaims
}

func userFromContext(ctx context.Context) *userRecord {
	ru, _ := ctx.Value(userKey).(*requestUser)
	if ru == nil {
		return nil
	}
	return ru.user
}

func writeTokenCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	secure := requestIsSecure(r)
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  expiresAt,
	})
}

func clearTokenCookie(w http.ResponseWriter, r *http.Request) {
	secure := requestIsSecure(r)
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
