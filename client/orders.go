package client

import (
	"context"
	"net/http"
)

// Orders lists the caller's orders, or every order for admins.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	return getList[Order](ctx, c, "orders")
}

// Order fetches one order.
func (c *Client) Order(ctx context.Context, id string) (*Order, error) {
	return getOne[Order](ctx, c, "orders/"+escape(id))
}

// CreateOrder places an order for the signed-in user.
func (c *Client) CreateOrder(ctx context.Context, o Order) (*Order, error) {
	return send[Order](ctx, c, http.MethodPost, "orders", o)
}

// UpdateOrderStatus asks the server to move an order to status.
func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (*Order, error) {
	return send[Order](ctx, c, http.MethodPut, "orders/"+escape(id), map[string]OrderStatus{"status": status})
}

// DeleteOrder removes an order.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	return c.remove(ctx, "orders/"+escape(id))
}
