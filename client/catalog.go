package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ProductQuery filters GET /products. Zero values are omitted.
type ProductQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
	Featured bool
	StoreID  string
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Featured {
		v.Set("featured", "true")
	}
	if q.StoreID != "" {
		v.Set("storeId", q.StoreID)
	}
	return v
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Products []Product
	Total    int
	Page     int
	Pages    int
}

// Products lists products matching q.
func (c *Client) Products(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	resp, err := call[[]Product](ctx, c, http.MethodGet, "products", q.values(), nil)
	if err != nil {
		return nil, err
	}
	return &ProductPage{Products: resp.Data, Total: resp.Total, Page: resp.Page, Pages: resp.Pages}, nil
}

// Product fetches one product.
func (c *Client) Product(ctx context.Context, id string) (*Product, error) {
	return getOne[Product](ctx, c, "products/"+escape(id))
}

// CreateProduct adds a product.
func (c *Client) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	return send[Product](ctx, c, http.MethodPost, "products", p)
}

// UpdateProduct replaces the fields of a product.
func (c *Client) UpdateProduct(ctx context.Context, id string, p Product) (*Product, error) {
	return send[Product](ctx, c, http.MethodPut, "products/"+escape(id), p)
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.remove(ctx, "products/"+escape(id))
}

// Stores lists every store.
func (c *Client) Stores(ctx context.Context) ([]Store, error) {
	return getList[Store](ctx, c, "stores")
}

// Store fetches one store.
func (c *Client) Store(ctx context.Context, id string) (*Store, error) {
	return getOne[Store](ctx, c, "stores/"+escape(id))
}

// CreateStore adds a store.
func (c *Client) CreateStore(ctx context.Context, s Store) (*Store, error) {
	return send[Store](ctx, c, http.MethodPost, "stores", s)
}

// UpdateStore replaces the fields of a store.
func (c *Client) UpdateStore(ctx context.Context, id string, s Store) (*Store, error) {
	return send[Store](ctx, c, http.MethodPut, "stores/"+escape(id), s)
}

// DeleteStore removes a store.
func (c *Client) DeleteStore(ctx context.Context, id string) error {
	return c.remove(ctx, "stores/"+escape(id))
}

// Categories lists every category.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	return getList[Category](ctx, c, "categories")
}

// CreateCategory adds a category.
func (c *Client) CreateCategory(ctx context.Context, cat Category) (*Category, error) {
	return send[Category](ctx, c, http.MethodPost, "categories", cat)
}

// UpdateCategory replaces the fields of a category.
func (c *Client) UpdateCategory(ctx context.Context, id string, cat Category) (*Category, error) {
	return send[Category](ctx, c, http.MethodPut, "categories/"+escape(id), cat)
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.remove(ctx, "categories/"+escape(id))
}

func getOne[T any](ctx context.Context, c *Client, path string) (*T, error) {
	resp, err := call[T](ctx, c, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func getList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	resp, err := call[[]T](ctx, c, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func send[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	resp, err := call[T](ctx, c, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) remove(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}
