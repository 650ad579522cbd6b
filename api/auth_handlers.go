package api

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/homly/identity"
)

const minPasswordLen = 6

var emailRE = regexp.MustCompile(`^\w+([.+-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,})+$`)

// dummyHash is compared against when an email is unknown so that unknown
// and known accounts take the same time to reject.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("homly-dummy-password"), bcrypt.DefaultCost)

func validateRegistration(req *RegisterRequest) string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = identity.NormalizeEmail(req.Email)
	switch {
	case req.Name == "":
		return "Please add a name"
	case req.Email == "":
		return "Please add an email"
	case !emailRE.MatchString(req.Email):
		return "Please add a valid email"
	case req.Password == "":
		return "Please add a password"
	case len(req.Password) < minPasswordLen:
		return "Password must be at least 6 characters"
	}
	return ""
}

// sendToken issues a token for u, sets it as the jwt cookie and writes the
// AuthResponse.
func (a *API) sendToken(w http.ResponseWriter, r *http.Request, status int, u *userRecord) {
	token, expiresAt, err := a.tokens.issue(u.ID)
	if err != nil {
		writeInternalError(w, "failed to issue token", err)
		return
	}
	writeTokenCookie(w, r, token, expiresAt)
	writeJSON(w, status, AuthResponse{Success: true, Token: token, Data: u.public()})
}

// Register handles POST /users/register.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	clientIP := a.extractClientIP(r)
	if blocked, retryAfter := a.limits.registerGlobal.check(); blocked {
		a.audit.logFailure(AuditRegisterRateLimited, r, "global rate limited")
		writeRateLimited(w, retryAfter, "Too many requests, try again later")
		return
	}
	if blocked, retryAfter := a.limits.registerIP.check(clientIP); blocked {
		a.audit.logFailure(AuditRegisterRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter, "Too many requests, try again later")
		return
	}

	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if msg := validateRegistration(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	// Record before the bcrypt work.
	a.limits.registerIP.recordFailure(clientIP)
	a.limits.registerGlobal.record()

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeInternalError(w, "failed to hash password", err)
		return
	}
	u := &userRecord{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         identity.RoleCustomer,
		Mobile:       strings.TrimSpace(req.Mobile),
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.repo.createUser(u); err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditRegister, r, u.ID)
	a.sendToken(w, r, http.StatusCreated, u)
}

// Login handles POST /users/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide an email and password")
		return
	}

	clientIP := a.extractClientIP(r)
	if blocked, retryAfter, scope := a.limits.checkLogin(clientIP, email); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, scope+" rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter, "Too many failed login attempts, try again later")
		return
	}

	u, err := a.repo.userByEmail(email)
	if err != nil && !errors.Is(err, errUserNotFound) {
		writeInternalError(w, "failed to load user", err)
		return
	}
	hash := dummyHash
	if u != nil && u.PasswordHash != "" {
		hash = []byte(u.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil || u == nil || u.PasswordHash == "" {
		a.limits.loginFailed(clientIP, email)
		a.audit.logFailure(AuditLoginFailure, r, "invalid email or password",
			slog.String("client_ip", clientIP))
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	a.limits.loginSucceeded(clientIP, email)
	a.audit.logEvent(AuditLoginSuccess, r, u.ID)
	a.sendToken(w, r, http.StatusOK, u)
}

// GoogleLogin handles POST /users/google. A verified Google account signs
// in the user with the same email, creating a customer account on first
// use.
func (a *API) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if a.google == nil {
		writeError(w, http.StatusNotImplemented, "Google sign-in is not configured")
		return
	}
	req, ok := decodeJSON[GoogleRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	var (
		gid *GoogleIdentity
		err error
	)
	switch {
	case req.Credential != "":
		gid, err = a.google.VerifyCredential(r.Context(), req.Credential)
	case req.AccessToken != "":
		gid, err = a.google.VerifyAccessToken(r.Context(), req.AccessToken)
	default:
		writeError(w, http.StatusBadRequest, "Google credential is required")
		return
	}
	if err != nil {
		a.audit.logFailure(AuditGoogleLoginFailure, r, err.Error())
		writeError(w, http.StatusUnauthorized, "Google authentication failed")
		return
	}

	u, err := a.repo.userByEmail(gid.Email)
	switch {
	case errors.Is(err, errUserNotFound):
		name := strings.TrimSpace(gid.Name)
		if name == "" {
			name, _, _ = strings.Cut(gid.Email, "@")
		}
		u = &userRecord{
			ID:            uuid.NewString(),
			Name:          name,
			Email:         gid.Email,
			Role:          identity.RoleCustomer,
			GoogleSubject: gid.Subject,
			CreatedAt:     time.Now().UTC(),
		}
		if err := a.repo.createUser(u); err != nil {
			mapError(w, err)
			return
		}
		a.audit.logEvent(AuditRegister, r, u.ID, slog.String("provider", "google"))
	case err != nil:
		writeInternalError(w, "failed to load user", err)
		return
	case u.GoogleSubject == "":
		u.GoogleSubject = gid.Subject
		if err := a.repo.saveUser(u, u.Email); err != nil {
			mapError(w, err)
			return
		}
	case u.GoogleSubject != gid.Subject:
		a.audit.logFailure(AuditGoogleLoginFailure, r, "subject mismatch", slog.String("user_id", u.ID))
		writeError(w, http.StatusUnauthorized, "Google authentication failed")
		return
	}

	a.audit.logEvent(AuditGoogleLogin, r, u.ID)
	a.sendToken(w, r, http.StatusOK, u)
}

// Logout handles POST /users/logout. It is public: a valid token, if one is
// presented, is revoked until it expires, and the cookie is always cleared.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if raw := bearerToken(r); raw != "" {
		if claims, err := a.tokens.verify(raw); err == nil && claims.ID != "" {
			if err := a.revoked.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
				a.audit.logger.Warn("failed to revoke token", "error", err)
			}
			a.audit.logEvent(AuditLogout, r, claims.UserID)
		}
	}
	clearTokenCookie(w, r)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}
