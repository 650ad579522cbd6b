package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/homly/api"
	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
	"github.com/jmcleod/homly/storage/memory"
)

var testSecret = []byte("test-secret-at-least-32-bytes-long!!")

func newAPI(t *testing.T, opts ...api.Option) *api.API {
	t.Helper()
	opts = append([]api.Option{api.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	a, err := api.New(memory.NewStore(), testSecret, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Seed())
	return a
}

func setupServer(t *testing.T, opts ...api.Option) (*httptest.Server, *api.API) {
	t.Helper()
	a := newAPI(t, opts...)
	r := chi.NewRouter()
	r.Mount("/api", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, a
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, hc *http.Client, method, url string, body any, token ...string) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(token) > 0 && token[0] != "" {
		req.Header.Set("Authorization", "Bearer "+token[0])
	}
	resp, err := hc.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func message(t *testing.T, resp *http.Response) string {
	t.Helper()
	return decode[api.MessageResponse](t, resp).Message
}

func register(t *testing.T, hc *http.Client, baseURL, name, email string) api.AuthResponse {
	t.Helper()
	resp := doJSON(t, hc, http.MethodPost, baseURL+"/api/users/register", api.RegisterRequest{
		Name: name, Email: email, Password: "hunter22",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[api.AuthResponse](t, resp)
}

func login(t *testing.T, hc *http.Client, baseURL, email, password string) *http.Response {
	t.Helper()
	return doJSON(t, hc, http.MethodPost, baseURL+"/api/users/login", api.LoginRequest{
		Email: email, Password: password,
	})
}

func TestRegisterLoginProfile(t *testing.T) {
	srv, _ := setupServer(t)
	hc := newClient(t)

	reg := register(t, hc, srv.URL, "Asha", "  Asha@Example.com ")
	assert.True(t, reg.Success)
	require.NotEmpty(t, reg.Token)
	require.NotNil(t, reg.Data)
	assert.Equal(t, "asha@example.com", reg.Data.Email)
	assert.Equal(t, identity.RoleCustomer, reg.Data.Role)
	assert.NotEmpty(t, reg.Data.ID)

	resp := login(t, http.DefaultClient, srv.URL, "asha@example.com", "hunter22")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	auth := decode[api.AuthResponse](t, resp)
	assert.Equal(t, reg.Data.ID, auth.Data.ID)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "jwt" {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "login sets the jwt cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, auth.Token, cookie.Value)

	// Bearer header.
	resp = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/users/profile", nil, auth.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decode[api.DataResponse[*identity.Identity]](t, resp)
	assert.Equal(t, "Asha", profile.Data.Name)

	// Cookie from registration.
	resp = doJSON(t, hc, http.MethodGet, srv.URL+"/api/users/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	srv, _ := setupServer(t)

	tests := []struct {
		name string
		req  api.RegisterRequest
		want string
	}{
		{"missing name", api.RegisterRequest{Email: "a@b.co", Password: "secret1"}, "Please add a name"},
		{"missing email", api.RegisterRequest{Name: "A", Password: "secret1"}, "Please add an email"},
		{"bad email", api.RegisterRequest{Name: "A", Email: "not-an-email", Password: "secret1"}, "Please add a valid email"},
		{"short password", api.RegisterRequest{Name: "A", Email: "a@b.co", Password: "12345"}, "Password must be at least 6 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/register", tt.req)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.want, message(t, resp))
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodPost,
			srv.URL+"/api/users/register", bytes.NewBufferString("{nope"))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("oversized body", func(t *testing.T) {
		big := api.RegisterRequest{Name: string(bytes.Repeat([]byte("x"), 32<<10)), Email: "a@b.co", Password: "secret1"}
		resp := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/register", big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestRegisterDuplicate(t *testing.T) {
	srv, _ := setupServer(t)
	register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")

	resp := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/register", api.RegisterRequest{
		Name: "Other", Email: "ASHA@example.com", Password: "hunter22",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User already exists", message(t, resp))
}

func TestRegisterRateLimited(t *testing.T) {
	srv, _ := setupServer(t)
	for i := range 5 {
		register(t, http.DefaultClient, srv.URL, "User", "user"+string(rune('a'+i))+"@example.com")
	}
	resp := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/register", api.RegisterRequest{
		Name: "User", Email: "userf@example.com", Password: "hunter22",
	})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLoginFailures(t *testing.T) {
	srv, _ := setupServer(t)
	register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")

	resp := login(t, http.DefaultClient, srv.URL, "asha@example.com", "wrong-password")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", message(t, resp))

	resp = login(t, http.DefaultClient, srv.URL, "nobody@example.com", "hunter22")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", message(t, resp), "unknown emails look the same")

	resp = login(t, http.DefaultClient, srv.URL, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginLockout(t *testing.T) {
	var alerts []api.AlertEvent
	srv, _ := setupServer(t, api.WithAlertFunc(func(ev api.AlertEvent) { alerts = append(alerts, ev) }))
	register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")

	for range 5 {
		resp := login(t, http.DefaultClient, srv.URL, "asha@example.com", "wrong-password")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp := login(t, http.DefaultClient, srv.URL, "asha@example.com", "hunter22")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode, "even the right password is refused while locked")
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Empty(t, alerts, "five failures are below the spike threshold")
}

func TestProtectMessages(t *testing.T) {
	srv, _ := setupServer(t)

	resp := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/users/profile", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, no token", message(t, resp))

	resp = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/users/profile", nil, "not.a.jwt")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, token failed", message(t, resp))

	// A token signed by another deployment.
	other := newAPI(t)
	_, err := other.CreateAccount("Ghost", "ghost@example.com", "hunter22", identity.RoleCustomer, "")
	require.NoError(t, err)
	otherSrv := httptest.NewServer(other.Router())
	defer otherSrv.Close()
	resp = doJSON(t, http.DefaultClient, http.MethodPost, otherSrv.URL+"/users/login",
		api.LoginRequest{Email: "ghost@example.com", Password: "hunter22"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ghost := decode[api.AuthResponse](t, resp)

	resp = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/users/profile", nil, ghost.Token)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, user not found", message(t, resp),
		"same secret, but the user only exists on the other server")
}

func TestLogoutRevokesToken(t *testing.T) {
	srv, _ := setupServer(t)
	reg := register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")

	resp := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/logout", nil, reg.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out successfully", message(t, resp))

	resp = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/users/profile", nil, reg.Token)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, token failed", message(t, resp))

	// Logging out again, or without a token, still succeeds.
	resp = doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/logout", nil, reg.Token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// A fresh login works.
	resp = login(t, http.DefaultClient, srv.URL, "asha@example.com", "hunter22")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogoutClearsCookie(t *testing.T) {
	srv, _ := setupServer(t)
	hc := newClient(t)
	register(t, hc, srv.URL, "Asha", "asha@example.com")

	resp := doJSON(t, hc, http.MethodPost, srv.URL+"/api/users/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, hc, http.MethodGet, srv.URL+"/api/users/profile", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Not authorized, no token", message(t, resp))
}

func TestUpdateProfile(t *testing.T) {
	srv, _ := setupServer(t)
	reg := register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")

	resp := doJSON(t, http.DefaultClient, http.MethodPut, srv.URL+"/api/users/profile", api.ProfileUpdateRequest{
		Name:     "Asha K",
		Email:    "asha.k@example.com",
		Password: "new-password",
		Address:  &identity.Address{City: "Chennai", Country: "India"},
	}, reg.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[api.AuthResponse](t, resp)
	assert.NotEmpty(t, updated.Token)
	assert.Equal(t, "Asha K", updated.Data.Name)
	assert.Equal(t, "asha.k@example.com", updated.Data.Email)
	require.NotNil(t, updated.Data.Address)
	assert.Equal(t, "Chennai", updated.Data.Address.City)

	resp = login(t, http.DefaultClient, srv.URL, "asha@example.com", "hunter22")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "old email no longer resolves")
	resp = login(t, http.DefaultClient, srv.URL, "asha.k@example.com", "new-password")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	t.Run("email taken", func(t *testing.T) {
		other := register(t, http.DefaultClient, srv.URL, "Ravi", "ravi@example.com")
		resp := doJSON(t, http.DefaultClient, http.MethodPut, srv.URL+"/api/users/profile",
			api.ProfileUpdateRequest{Email: "asha.k@example.com"}, other.Token)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "User already exists", message(t, resp))
	})

	t.Run("short password", func(t *testing.T) {
		resp := doJSON(t, http.DefaultClient, http.MethodPut, srv.URL+"/api/users/profile",
			api.ProfileUpdateRequest{Password: "123"}, updated.Token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSavedProducts(t *testing.T) {
	srv, _ := setupServer(t)
	reg := register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")
	url := srv.URL + "/api/users/profile/saved-products"

	resp := doJSON(t, http.DefaultClient, http.MethodPost, url, api.SavedProductRequest{ProductID: "prod-bread"}, reg.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[api.DataResponse[[]client.Product]](t, resp)
	require.Len(t, saved.Data, 1)
	assert.Equal(t, "prod-bread", saved.Data[0].ID)

	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.SavedProductRequest{ProductID: "prod-milk-dairy"}, reg.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, http.MethodGet, url, nil, reg.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved = decode[api.DataResponse[[]client.Product]](t, resp)
	require.Len(t, saved.Data, 2)

	// Toggling again removes.
	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.SavedProductRequest{ProductID: "prod-bread"}, reg.Token)
	saved = decode[api.DataResponse[[]client.Product]](t, resp)
	require.Len(t, saved.Data, 1)
	assert.Equal(t, "prod-milk-dairy", saved.Data[0].ID)

	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.SavedProductRequest{ProductID: "missing"}, reg.Token)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Product not found", message(t, resp))
}

func TestListUsersStaffOnly(t *testing.T) {
	srv, a := setupServer(t)
	customer := register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")

	resp := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/users", nil, customer.Token)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Not authorized as admin", message(t, resp))

	_, err := a.CreateAccount("Admin", "admin@example.com", "admin-pass", identity.RoleAdmin, "")
	require.NoError(t, err)
	resp = login(t, http.DefaultClient, srv.URL, "admin@example.com", "admin-pass")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	admin := decode[api.AuthResponse](t, resp)

	resp = doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/users", nil, admin.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[api.ListResponse[identity.Identity]](t, resp)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "admin@example.com", list.Data[0].Email, "newest first")

	raw, err := json.Marshal(list.Data)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "password")
}

func TestCreateAccountValidation(t *testing.T) {
	a := newAPI(t)
	_, err := a.CreateAccount("Admin", "admin@example.com", "short", identity.RoleAdmin, "")
	require.Error(t, err)
	_, err = a.CreateAccount("Admin", "admin@example.com", "long-enough", identity.Role("root"), "")
	require.Error(t, err)

	ident, err := a.CreateAccount("Store", "store@example.com", "long-enough", identity.RoleStoreAdmin, "store-dairy")
	require.NoError(t, err)
	assert.Equal(t, "store-dairy", identity.RefID(ident.StoreID))
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := setupServer(t)
	resp := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/categories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"), "plain HTTP")
}

func TestOpenAPIDocument(t *testing.T) {
	srv, _ := setupServer(t)
	resp := doJSON(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/users/login")
}

type fakeGoogle struct {
	ids map[string]*api.GoogleIdentity
}

func (f *fakeGoogle) VerifyCredential(_ context.Context, idToken string) (*api.GoogleIdentity, error) {
	if id, ok := f.ids[idToken]; ok {
		return id, nil
	}
	return nil, errors.New("invalid id token")
}

func (f *fakeGoogle) VerifyAccessToken(_ context.Context, accessToken string) (*api.GoogleIdentity, error) {
	return f.VerifyCredential(context.Background(), "access:"+accessToken)
}

func TestGoogleLogin(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv, _ := setupServer(t)
		resp := doJSON(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/users/google",
			api.GoogleRequest{Credential: "x"})
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})

	google := &fakeGoogle{ids: map[string]*api.GoogleIdentity{
		"good":         {Subject: "g-1", Email: "meena@example.com", EmailVerified: true, Name: "Meena"},
		"access:tok":   {Subject: "g-1", Email: "meena@example.com", EmailVerified: true},
		"impostor":     {Subject: "g-2", Email: "meena@example.com", EmailVerified: true},
		"existing":     {Subject: "g-3", Email: "asha@example.com", EmailVerified: true},
		"access:nomen": {Subject: "g-4", Email: "noname@example.com", EmailVerified: true},
	}}
	srv, _ := setupServer(t, api.WithGoogleVerifier(google))
	url := srv.URL + "/api/users/google"

	resp := doJSON(t, http.DefaultClient, http.MethodPost, url, api.GoogleRequest{Credential: "good"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[api.AuthResponse](t, resp)
	assert.Equal(t, "Meena", first.Data.Name)
	assert.Equal(t, identity.RoleCustomer, first.Data.Role)
	assert.NotEmpty(t, first.Token)

	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.GoogleRequest{AccessToken: "tok"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[api.AuthResponse](t, resp)
	assert.Equal(t, first.Data.ID, second.Data.ID, "same account on the second sign-in")

	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.GoogleRequest{Credential: "impostor"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "another Google subject for a linked email")

	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.GoogleRequest{Credential: "forged"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Google authentication failed", message(t, resp))

	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.GoogleRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.GoogleRequest{AccessToken: "nomen"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "noname", decode[api.AuthResponse](t, resp).Data.Name)

	// A password account is linked on first Google sign-in.
	register(t, http.DefaultClient, srv.URL, "Asha", "asha@example.com")
	resp = doJSON(t, http.DefaultClient, http.MethodPost, url, api.GoogleRequest{Credential: "existing"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Asha", decode[api.AuthResponse](t, resp).Data.Name)
	resp = login(t, http.DefaultClient, srv.URL, "asha@example.com", "hunter22")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "password still works after linking")
}
