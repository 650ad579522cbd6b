package api

import (
	"time"

	"github.com/jmcleod/homly/identity"
)

// MessageResponse is the body of errors and of POST /users/logout.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthResponse is returned by register, login, Google login and profile
// updates. The token is also set as the "jwt" cookie.
type AuthResponse struct {
	Success bool               `json:"success"`
	Token   string             `json:"token"`
	Data    *identity.Identity `json:"data"`
}

// DataResponse wraps a single record.
type DataResponse[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// ListResponse wraps an unpaginated list.
type ListResponse[T any] struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    []T  `json:"data"`
}

// PageResponse wraps one page of a list.
type PageResponse[T any] struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	Data    []T  `json:"data"`
}

// RegisterRequest is the JSON body for POST /users/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Mobile   string `json:"mobile,omitempty"`
}

// LoginRequest is the JSON body for POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleRequest is the JSON body for POST /users/google.
type GoogleRequest struct {
	Credential  string `json:"credential,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

// ProfileUpdateRequest is the JSON body for PUT /users/profile. Empty
// fields keep their current value.
type ProfileUpdateRequest struct {
	Name     string            `json:"name,omitempty"`
	Email    string            `json:"email,omitempty"`
	Mobile   string            `json:"mobile,omitempty"`
	Password string            `json:"password,omitempty"`
	Address  *identity.Address `json:"address,omitempty"`
}

// SavedProductRequest is the JSON body for POST /users/profile/saved-products.
type SavedProductRequest struct {
	ProductID string `json:"productId"`
}

// UserUpdateRequest is the JSON body for the admin PUT /users/{id}. Absent
// fields keep their current value.
type UserUpdateRequest struct {
	Name    string        `json:"name,omitempty"`
	Email   string        `json:"email,omitempty"`
	Role    identity.Role `json:"role,omitempty"`
	StoreID string        `json:"storeId,omitempty"`
	Coins   *float64      `json:"coins,omitempty"`
}

// userRecord is a stored account.
type userRecord struct {
	ID            string            `json:"_id"`
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	PasswordHash  string            `json:"password,omitempty"`
	Role          identity.Role     `json:"role"`
	StoreID       string            `json:"storeId,omitempty"`
	Mobile        string            `json:"mobile,omitempty"`
	Address       *identity.Address `json:"address,omitempty"`
	Coins         float64           `json:"coins"`
	SavedProducts []string          `json:"savedProducts,omitempty"`
	GoogleSubject string            `json:"googleSubject,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// public returns the identity clients see for u.
func (u *userRecord) public() *identity.Identity {
	id := &identity.Identity{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Mobile: u.Mobile,
		Coins:  u.Coins,
	}
	if u.StoreID != "" {
		id.StoreID = &identity.Ref{ID: u.StoreID}
	}
	if u.Address != nil {
		addr := *u.Address
		id.Address = &addr
	}
	return id
}
