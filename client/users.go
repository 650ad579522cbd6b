package client

import (
	"context"
	"net/http"

	"github.com/jmcleod/homly/identity"
)

// Credential exchange endpoints. A 401 from these means the credentials
// were rejected, not that an existing session expired.
const (
	PathLogin       = "users/login"
	PathRegister    = "users/register"
	PathGoogleLogin = "users/google"
)

// PathLogout is the sign-out endpoint.
const PathLogout = "users/logout"

// IsCredentialExchange reports whether path is one of the sign-in endpoints.
func IsCredentialExchange(path string) bool {
	switch path {
	case PathLogin, PathRegister, PathGoogleLogin:
		return true
	}
	return false
}

// LoginRequest is the body of POST /users/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /users/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Mobile   string `json:"mobile,omitempty"`
}

// GoogleAuth is the body of POST /users/google. Either the ID token
// credential or an OAuth access token is set.
type GoogleAuth struct {
	Credential  string `json:"credential,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

// ProfileUpdate is the body of PUT /users/profile. Empty fields are left
// unchanged by the server.
type ProfileUpdate struct {
	Name     string            `json:"name,omitempty"`
	Email    string            `json:"email,omitempty"`
	Mobile   string            `json:"mobile,omitempty"`
	Password string            `json:"password,omitempty"`
	Address  *identity.Address `json:"address,omitempty"`
}

// UserUpdate is the body of the admin PUT /users/{id}.
type UserUpdate struct {
	Name    string        `json:"name,omitempty"`
	Email   string        `json:"email,omitempty"`
	Role    identity.Role `json:"role,omitempty"`
	StoreID string        `json:"storeId,omitempty"`
	Coins   *float64      `json:"coins,omitempty"`
}

// AuthResult is what the login, register and Google endpoints return.
type AuthResult struct {
	Identity *identity.Identity
	Token    string
}

func authResult(resp *Response[*identity.Identity]) *AuthResult {
	return &AuthResult{Identity: resp.Data, Token: resp.Token}
}

// Login exchanges email and password for an identity and bearer token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	resp, err := call[*identity.Identity](ctx, c, http.MethodPost, PathLogin, nil, req)
	if err != nil {
		return nil, err
	}
	return authResult(resp), nil
}

// Register creates a customer account and signs it in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	resp, err := call[*identity.Identity](ctx, c, http.MethodPost, PathRegister, nil, req)
	if err != nil {
		return nil, err
	}
	return authResult(resp), nil
}

// GoogleLogin signs in with a Google credential.
func (c *Client) GoogleLogin(ctx context.Context, req GoogleAuth) (*AuthResult, error) {
	resp, err := call[*identity.Identity](ctx, c, http.MethodPost, PathGoogleLogin, nil, req)
	if err != nil {
		return nil, err
	}
	return authResult(resp), nil
}

// Logout asks the server to clear its session cookie.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, PathLogout, nil, nil)
	return err
}

// ForgotPassword requests a password reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.do(ctx, http.MethodPost, "users/forgotpassword", nil, map[string]string{"email": email})
	return err
}

// ResetPassword sets a new password using the token from the reset email.
func (c *Client) ResetPassword(ctx context.Context, token, password string) (*AuthResult, error) {
	resp, err := call[*identity.Identity](ctx, c, http.MethodPut, "users/resetpassword/"+escape(token), nil,
		map[string]string{"password": password})
	if err != nil {
		return nil, err
	}
	return authResult(resp), nil
}

// Profile fetches the authoritative identity for the current token.
func (c *Client) Profile(ctx context.Context) (*identity.Identity, error) {
	resp, err := call[*identity.Identity](ctx, c, http.MethodGet, "users/profile", nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateProfile changes the current user's profile.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*AuthResult, error) {
	resp, err := call[*identity.Identity](ctx, c, http.MethodPut, "users/profile", nil, update)
	if err != nil {
		return nil, err
	}
	return authResult(resp), nil
}

// SavedProducts lists the current user's saved products.
func (c *Client) SavedProducts(ctx context.Context) ([]Product, error) {
	resp, err := call[[]Product](ctx, c, http.MethodGet, "users/profile/saved-products", nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ToggleSavedProduct adds or removes a product from the saved list and
// returns the resulting list.
func (c *Client) ToggleSavedProduct(ctx context.Context, productID string) ([]Product, error) {
	resp, err := call[[]Product](ctx, c, http.MethodPost, "users/profile/saved-products", nil,
		map[string]string{"productId": productID})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Users lists every account. Admin only.
func (c *Client) Users(ctx context.Context) ([]identity.Identity, error) {
	resp, err := call[[]identity.Identity](ctx, c, http.MethodGet, "users", nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateUser changes another account. Admin only.
func (c *Client) UpdateUser(ctx context.Context, id string, update UserUpdate) (*identity.Identity, error) {
	resp, err := call[*identity.Identity](ctx, c, http.MethodPut, "users/"+escape(id), nil, update)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// DeleteUser removes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "users/"+escape(id), nil, nil)
	return err
}
