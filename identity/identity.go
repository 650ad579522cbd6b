// Package identity defines the server-issued user record shared by the
// transport, the session manager and the cart.
package identity

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Role is the account role assigned by the server.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleStoreAdmin Role = "store_admin"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStoreAdmin, RoleAdmin:
		return true
	}
	return false
}

// IsAdmin reports whether r has full back-office access.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// IsStaff reports whether r may enter the admin area at all. Store admins
// are limited to their own store.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStoreAdmin
}

// Address is the postal address kept on a user profile.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Identity is the user record returned by the profile, login and register
// endpoints.
type Identity struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Role    Role     `json:"role"`
	StoreID *Ref     `json:"storeId,omitempty"`
	Mobile  string   `json:"mobile,omitempty"`
	Address *Address `json:"address,omitempty"`
	Coins   float64  `json:"coins"`
}

// UnmarshalJSON accepts records that carry "id" instead of "_id".
func (i *Identity) UnmarshalJSON(data []byte) error {
	type plain Identity
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*i = Identity(aux.plain)
	if i.ID == "" {
		i.ID = aux.AltID
	}
	return nil
}

// GuestID keys per-user state when no one is signed in.
const GuestID = "guest"

// UserID returns the identifier used to key per-user state, falling back to
// GuestID for a nil identity.
func (i *Identity) UserID() string {
	if i == nil || i.ID == "" {
		return GuestID
	}
	return i.ID
}

// Clone returns a deep copy of i.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.StoreID != nil {
		ref := *i.StoreID
		c.StoreID = &ref
	}
	if i.Address != nil {
		addr := *i.Address
		c.Address = &addr
	}
	return &c
}

// Ref is a reference to another record. The server sends it either as a bare
// id string or as a populated object with at least an id and optionally a
// name.
type Ref struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON accepts a string id, a populated object or null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	}
	var obj struct {
		ID    string `json:"_id"`
		AltID string `json:"id"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	id := obj.ID
	if id == "" {
		id = obj.AltID
	}
	*r = Ref{ID: id, Name: obj.Name}
	return nil
}

// MarshalJSON writes a bare id unless a name is known.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Name == "" {
		return json.Marshal(r.ID)
	}
	type plain Ref
	return json.Marshal(plain(r))
}

// RefID returns the referenced id, or "" for a nil reference.
func RefID(r *Ref) string {
	if r == nil {
		return ""
	}
	return r.ID
}

// NormalizeEmail trims, applies NFKC and lowercases an email address the
// same way the server stores it.
func NormalizeEmail(email string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(email)))
}
