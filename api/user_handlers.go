package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
)

// Profile handles GET /users/profile.
func (a *API) Profile(w http.ResponseWriter, r *http.Request) {
	u := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, DataResponse[*identity.Identity]{Success: true, Data: u.public()})
}

// UpdateProfile handles PUT /users/profile and re-issues the token.
func (a *API) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ProfileUpdateRequest](w, r, maxProfileBodySize)
	if !ok {
		return
	}
	current := userFromContext(r.Context())
	// Reload so concurrent saved-product toggles are not overwritten.
	u, err := a.repo.userByID(current.ID)
	if err != nil {
		mapError(w, err)
		return
	}
	previousEmail := u.Email

	if name := strings.TrimSpace(req.Name); name != "" {
		u.Name = name
	}
	if req.Email != "" {
		email := identity.NormalizeEmail(req.Email)
		if !emailRE.MatchString(email) {
			writeError(w, http.StatusBadRequest, "Please add a valid email")
			return
		}
		u.Email = email
	}
	if req.Mobile != "" {
		u.Mobile = strings.TrimSpace(req.Mobile)
	}
	if req.Address != nil {
		addr := *req.Address
		u.Address = &addr
	}
	if req.Password != "" {
		if len(req.Password) < minPasswordLen {
			writeError(w, http.StatusBadRequest, "Password must be at least 6 characters")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeInternalError(w, "failed to hash password", err)
			return
		}
		u.PasswordHash = string(hash)
	}

	if err := a.repo.saveUser(u, previousEmail); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditProfileUpdated, r, u.ID)
	a.sendToken(w, r, http.StatusOK, u)
}

// SavedProducts handles GET /users/profile/saved-products. Products that
// no longer exist are skipped.
func (a *API) SavedProducts(w http.ResponseWriter, r *http.Request) {
	u, err := a.repo.userByID(userFromContext(r.Context()).ID)
	if err != nil {
		mapError(w, err)
		return
	}
	products, err := a.savedProducts(u)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[[]client.Product]{Success: true, Data: products})
}

// ToggleSavedProduct handles POST /users/profile/saved-products: the
// product is added when absent and removed when present.
func (a *API) ToggleSavedProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SavedProductRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	u, err := a.repo.toggleSaved(userFromContext(r.Context()).ID, req.ProductID, func(id string) error {
		_, err := a.repo.product(id)
		return err
	})
	if err != nil {
		mapError(w, err)
		return
	}
	products, err := a.savedProducts(u)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[[]client.Product]{Success: true, Data: products})
}

func (a *API) savedProducts(u *userRecord) ([]client.Product, error) {
	products := make([]client.Product, 0, len(u.SavedProducts))
	for _, id := range u.SavedProducts {
		p, err := a.repo.product(id)
		if errors.Is(err, errProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}

// ListUsers handles GET /users. Staff only.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.repo.users()
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]identity.Identity, len(users))
	for i := range users {
		out[i] = *users[i].public()
	}
	writeJSON(w, http.StatusOK, ListResponse[identity.Identity]{Success: true, Count: len(out), Data: out})
}


// UpdateUser handles the admin PUT /users/{id}: name, email, role, store
// binding and coin balance.
func (a *API) UpdateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UserUpdateRequest](w, r, maxProfileBodySize)
	if !ok {
		return
	}
	u, err := a.repo.userByID(chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	previousEmail := u.Email

	if name := strings.TrimSpace(req.Name); name != "" {
		u.Name = name
	}
	if req.Email != "" {
		email := identity.NormalizeEmail(req.Email)
		if !emailRE.MatchString(email) {
			writeError(w, http.StatusBadRequest, "Please add a valid email")
			return
		}
		u.Email = email
	}
	if req.Role != "" {
		if !req.Role.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid role")
			return
		}
		u.Role = req.Role
	}
	if req.StoreID != "" {
		u.StoreID = req.StoreID
	}
	if u.Role != identity.RoleStoreAdmin {
		u.StoreID = ""
	}
	if req.Coins != nil {
		if *req.Coins < 0 {
			writeError(w, http.StatusBadRequest, "Coins cannot be negative")
			return
		}
		u.Coins = *req.Coins
	}

	if err := a.repo.saveUser(u, previousEmail); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditUserUpdated, r, userFromContext(r.Context()).ID, slog.String("target_id", u.ID))
	writeJSON(w, http.StatusOK, DataResponse[*identity.Identity]{Success: true, Data: u.public()})
}
