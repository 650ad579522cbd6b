package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/homly/identity"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   []byte
}

// recordingClient returns a client whose server records the last request
// and answers every call with an empty success envelope.
func recordingClient(t *testing.T) (*Client, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		*rec = recordedRequest{method: r.Method, path: r.URL.EscapedPath(), query: r.URL.RawQuery, body: body}
		writeBody(w, http.StatusOK, map[string]any{"success": true})
	})
	return newTestClient(t, h), rec
}

type endpointCase struct {
	name   string
	call   func(ctx context.Context, c *Client) error
	method string
	path   string
	// body lists fields the JSON request body must carry; nil means no body.
	body map[string]any
}

func runEndpointCases(t *testing.T, cases []endpointCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := recordingClient(t)
			require.NoError(t, tc.call(t.Context(), c))
			assert.Equal(t, tc.method, rec.method)
			assert.Equal(t, "/api/"+tc.path, rec.path)
			if tc.body == nil {
				assert.Empty(t, rec.body)
				return
			}
			var got map[string]any
			require.NoError(t, json.Unmarshal(rec.body, &got))
			for k, want := range tc.body {
				assert.Equal(t, want, got[k], "body field %q", k)
			}
		})
	}
}

func ignore[T any](_ T, err error) error { return err }

func TestUserEndpoints(t *testing.T) {
	coins := 3.0
	runEndpointCases(t, []endpointCase{
		{"login", func(ctx context.Context, c *Client) error {
			return ignore(c.Login(ctx, LoginRequest{Email: "a@example.com", Password: "pw"}))
		}, http.MethodPost, "users/login", map[string]any{"email": "a@example.com", "password": "pw"}},
		{"register", func(ctx context.Context, c *Client) error {
			return ignore(c.Register(ctx, RegisterRequest{Name: "Asha", Email: "a@example.com", Password: "pw", Mobile: "9876543210"}))
		}, http.MethodPost, "users/register", map[string]any{"name": "Asha", "mobile": "9876543210"}},
		{"google", func(ctx context.Context, c *Client) error {
			return ignore(c.GoogleLogin(ctx, GoogleAuth{AccessToken: "at"}))
		}, http.MethodPost, "users/google", map[string]any{"accessToken": "at"}},
		{"logout", func(ctx context.Context, c *Client) error {
			return c.Logout(ctx)
		}, http.MethodPost, "users/logout", nil},
		{"forgot password", func(ctx context.Context, c *Client) error {
			return c.ForgotPassword(ctx, "a@example.com")
		}, http.MethodPost, "users/forgotpassword", map[string]any{"email": "a@example.com"}},
		{"reset password", func(ctx context.Context, c *Client) error {
			return ignore(c.ResetPassword(ctx, "reset/tok", "new-pw"))
		}, http.MethodPut, "users/resetpassword/reset%2Ftok", map[string]any{"password": "new-pw"}},
		{"profile", func(ctx context.Context, c *Client) error {
			return ignore(c.Profile(ctx))
		}, http.MethodGet, "users/profile", nil},
		{"update profile", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateProfile(ctx, ProfileUpdate{Name: "Asha K", Address: &identity.Address{City: "Chennai"}}))
		}, http.MethodPut, "users/profile", map[string]any{"name": "Asha K", "address": map[string]any{"city": "Chennai"}}},
		{"saved products", func(ctx context.Context, c *Client) error {
			return ignore(c.SavedProducts(ctx))
		}, http.MethodGet, "users/profile/saved-products", nil},
		{"toggle saved product", func(ctx context.Context, c *Client) error {
			return ignore(c.ToggleSavedProduct(ctx, "prod-bread"))
		}, http.MethodPost, "users/profile/saved-products", map[string]any{"productId": "prod-bread"}},
		{"users", func(ctx context.Context, c *Client) error {
			return ignore(c.Users(ctx))
		}, http.MethodGet, "users", nil},
		{"update user", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateUser(ctx, "u1", UserUpdate{Role: identity.RoleStoreAdmin, StoreID: "s1", Coins: &coins}))
		}, http.MethodPut, "users/u1", map[string]any{"role": "store_admin", "storeId": "s1", "coins": 3.0}},
		{"delete user", func(ctx context.Context, c *Client) error {
			return c.DeleteUser(ctx, "u1")
		}, http.MethodDelete, "users/u1", nil},
	})
}

func TestContentEndpoints(t *testing.T) {
	runEndpointCases(t, []endpointCase{
		{"news", func(ctx context.Context, c *Client) error {
			return ignore(c.News(ctx))
		}, http.MethodGet, "news", nil},
		{"news item", func(ctx context.Context, c *Client) error {
			return ignore(c.NewsItem(ctx, "n 1"))
		}, http.MethodGet, "news/n%201", nil},
		{"create news", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateNews(ctx, News{Title: "Open", Content: "Now open"}))
		}, http.MethodPost, "news", map[string]any{"title": "Open", "content": "Now open"}},
		{"update news", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateNews(ctx, "n1", News{Title: "Closed"}))
		}, http.MethodPut, "news/n1", map[string]any{"title": "Closed"}},
		{"delete news", func(ctx context.Context, c *Client) error {
			return c.DeleteNews(ctx, "n1")
		}, http.MethodDelete, "news/n1", nil},
		{"ads", func(ctx context.Context, c *Client) error {
			return ignore(c.Ads(ctx))
		}, http.MethodGet, "ads", nil},
		{"ad", func(ctx context.Context, c *Client) error {
			return ignore(c.Ad(ctx, "a1"))
		}, http.MethodGet, "ads/a1", nil},
		{"create ad", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateAd(ctx, Ad{Title: "Sale", Image: "sale.png", IsActive: true}))
		}, http.MethodPost, "ads", map[string]any{"title": "Sale", "isActive": true}},
		{"update ad", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateAd(ctx, "a1", Ad{Order: 2}))
		}, http.MethodPut, "ads/a1", map[string]any{"order": 2.0}},
		{"delete ad", func(ctx context.Context, c *Client) error {
			return c.DeleteAd(ctx, "a1")
		}, http.MethodDelete, "ads/a1", nil},
		{"services", func(ctx context.Context, c *Client) error {
			return ignore(c.Services(ctx))
		}, http.MethodGet, "services", nil},
		{"create service", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateService(ctx, Service{Name: "Plumber"}))
		}, http.MethodPost, "services", map[string]any{"name": "Plumber"}},
		{"update service", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateService(ctx, "s1", Service{Mobile: "9876543210"}))
		}, http.MethodPut, "services/s1", map[string]any{"mobile": "9876543210"}},
		{"delete service", func(ctx context.Context, c *Client) error {
			return c.DeleteService(ctx, "s1")
		}, http.MethodDelete, "services/s1", nil},
		{"create service request", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateServiceRequest(ctx, ServiceRequest{Service: &identity.Ref{ID: "s1"}, Name: "Asha"}))
		}, http.MethodPost, "service-requests", map[string]any{"service": "s1", "name": "Asha"}},
		{"service requests", func(ctx context.Context, c *Client) error {
			return ignore(c.ServiceRequests(ctx))
		}, http.MethodGet, "service-requests", nil},
		{"service request status", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateServiceRequestStatus(ctx, "r1", ServiceRequestInProgress))
		}, http.MethodPut, "service-requests/r1", map[string]any{"status": "In Progress"}},
		{"delete service request", func(ctx context.Context, c *Client) error {
			return c.DeleteServiceRequest(ctx, "r1")
		}, http.MethodDelete, "service-requests/r1", nil},
		{"settings", func(ctx context.Context, c *Client) error {
			return ignore(c.Settings(ctx))
		}, http.MethodGet, "settings", nil},
		{"setting", func(ctx context.Context, c *Client) error {
			return ignore(c.Setting(ctx, "deliveryFee"))
		}, http.MethodGet, "settings/deliveryFee", nil},
		{"update setting", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateSetting(ctx, "banner", map[string]any{"on": true}))
		}, http.MethodPut, "settings/banner", map[string]any{"value": map[string]any{"on": true}}},
	})
}

func TestCatalogEndpoints(t *testing.T) {
	runEndpointCases(t, []endpointCase{
		{"product", func(ctx context.Context, c *Client) error {
			return ignore(c.Product(ctx, "prod-bread"))
		}, http.MethodGet, "products/prod-bread", nil},
		{"create product", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateProduct(ctx, Product{Title: "Bread", Price: 45}))
		}, http.MethodPost, "products", map[string]any{"title": "Bread", "price": 45.0}},
		{"update product", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateProduct(ctx, "prod-bread", Product{Title: "Rye", IsGold: true}))
		}, http.MethodPut, "products/prod-bread", map[string]any{"title": "Rye", "isGold": true}},
		{"delete product", func(ctx context.Context, c *Client) error {
			return c.DeleteProduct(ctx, "prod-bread")
		}, http.MethodDelete, "products/prod-bread", nil},
		{"stores", func(ctx context.Context, c *Client) error {
			return ignore(c.Stores(ctx))
		}, http.MethodGet, "stores", nil},
		{"store", func(ctx context.Context, c *Client) error {
			return ignore(c.Store(ctx, "store-dairy"))
		}, http.MethodGet, "stores/store-dairy", nil},
		{"create store", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateStore(ctx, Store{Name: "Dairy Barn", City: "Chennai"}))
		}, http.MethodPost, "stores", map[string]any{"name": "Dairy Barn", "city": "Chennai"}},
		{"update store", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateStore(ctx, "store-dairy", Store{Timing: "7-9"}))
		}, http.MethodPut, "stores/store-dairy", map[string]any{"timing": "7-9"}},
		{"delete store", func(ctx context.Context, c *Client) error {
			return c.DeleteStore(ctx, "store-dairy")
		}, http.MethodDelete, "stores/store-dairy", nil},
		{"categories", func(ctx context.Context, c *Client) error {
			return ignore(c.Categories(ctx))
		}, http.MethodGet, "categories", nil},
		{"create category", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateCategory(ctx, Category{Name: "Dairy"}))
		}, http.MethodPost, "categories", map[string]any{"name": "Dairy"}},
		{"update category", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateCategory(ctx, "c1", Category{NameTA: "பால்"}))
		}, http.MethodPut, "categories/c1", map[string]any{"name_ta": "பால்"}},
		{"delete category", func(ctx context.Context, c *Client) error {
			return c.DeleteCategory(ctx, "c1")
		}, http.MethodDelete, "categories/c1", nil},
	})
}

func TestOrderEndpoints(t *testing.T) {
	runEndpointCases(t, []endpointCase{
		{"orders", func(ctx context.Context, c *Client) error {
			return ignore(c.Orders(ctx))
		}, http.MethodGet, "orders", nil},
		{"order", func(ctx context.Context, c *Client) error {
			return ignore(c.Order(ctx, "o1"))
		}, http.MethodGet, "orders/o1", nil},
		{"create order", func(ctx context.Context, c *Client) error {
			return ignore(c.CreateOrder(ctx, Order{
				Items:         []OrderItem{{Product: "prod-bread", Quantity: 2, Price: 45}},
				PaymentMethod: PaymentMethod{Type: "Cash on Delivery"},
				Subtotal:      90, Shipping: 20, Total: 110,
			}))
		}, http.MethodPost, "orders", map[string]any{
			"shipping":      20.0,
			"total":         110.0,
			"paymentMethod": map[string]any{"type": "Cash on Delivery"},
			"items":         []any{map[string]any{"product": "prod-bread", "name": "", "quantity": 2.0, "price": 45.0}},
		}},
		{"order status", func(ctx context.Context, c *Client) error {
			return ignore(c.UpdateOrderStatus(ctx, "o1", OrderCancelled))
		}, http.MethodPut, "orders/o1", map[string]any{"status": "Cancelled"}},
		{"delete order", func(ctx context.Context, c *Client) error {
			return c.DeleteOrder(ctx, "o1")
		}, http.MethodDelete, "orders/o1", nil},
	})
}

func TestProductsListingQuery(t *testing.T) {
	c, rec := recordingClient(t)
	_, err := c.Products(t.Context(), ProductQuery{Search: "bread", StoreID: "store-bakery", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/api/products", rec.path)
	assert.Equal(t, "page=2&search=bread&storeId=store-bakery", rec.query)
	assert.Empty(t, rec.body)
}
