package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
)

// OrderStatusRequest is the JSON body for PUT /orders/{id}.
type OrderStatusRequest struct {
	Status client.OrderStatus `json:"status"`
}

// CreateOrder handles POST /orders. Delivery is waived for orders with a
// gold product, or paid with one of the user's coins.
func (a *API) CreateOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[client.Order](w, r, maxOrderBodySize)
	if !ok {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "No order items")
		return
	}
	for _, it := range req.Items {
		if it.Product == "" || it.Quantity < 1 {
			writeError(w, http.StatusBadRequest, "Every order item needs a product and a quantity")
			return
		}
	}

	user := userFromContext(r.Context())
	o := client.Order{
		ID:                    uuid.NewString(),
		User:                  &identity.Ref{ID: user.ID},
		Items:                 req.Items,
		ShippingAddress:       req.ShippingAddress,
		PaymentMethod:         req.PaymentMethod,
		Subtotal:              req.Subtotal,
		Shipping:              req.Shipping,
		Tax:                   req.Tax,
		Discount:              req.Discount,
		Total:                 req.Total,
		Status:                client.OrderProcessing,
		ScheduledDeliveryTime: req.ScheduledDeliveryTime,
		CreatedAt:             time.Now().UTC(),
	}
	coinUsed, err := a.repo.placeOrder(&o, user.ID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditOrderPlaced, r, user.ID,
		slog.String("order_id", o.ID), slog.Bool("coin_used", coinUsed), slog.Float64("total", o.Total))
	writeJSON(w, http.StatusCreated, DataResponse[*client.Order]{Success: true, Data: &o})
}

// ListOrders handles GET /orders: every order for admins, the orders with
// a line from their store plus their own for store admins, and their own
// for customers.
func (a *API) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.repo.orders()
	if err != nil {
		mapError(w, err)
		return
	}
	user := userFromContext(r.Context())
	visible := make([]client.Order, 0, len(orders))
	for i := range orders {
		if canViewOrder(user, &orders[i]) {
			visible = append(visible, orders[i])
		}
	}
	writeJSON(w, http.StatusOK, ListResponse[client.Order]{Success: true, Count: len(visible), Data: visible})
}

// GetOrder handles GET /orders/{id}.
func (a *API) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.repo.order(chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	if !canViewOrder(userFromContext(r.Context()), o) {
		writeError(w, http.StatusForbidden, "Not authorized to view this order")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*client.Order]{Success: true, Data: o})
}

// UpdateOrderStatus handles PUT /orders/{id} for staff. Store admins may
// only move orders that contain a line from their store.
func (a *API) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[OrderStatusRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid order status")
		return
	}
	id := chi.URLParam(r, "id")
	current, err := a.repo.order(id)
	if err != nil {
		mapError(w, err)
		return
	}
	user := userFromContext(r.Context())
	if !canViewOrder(user, current) {
		writeError(w, http.StatusForbidden, "Not authorized to update this order")
		return
	}

	o, refunded, err := a.repo.setOrderStatus(id, req.Status, time.Now())
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditOrderStatus, r, user.ID,
		slog.String("order_id", o.ID), slog.String("status", string(o.Status)), slog.Bool("coin_refunded", refunded))
	writeJSON(w, http.StatusOK, DataResponse[*client.Order]{Success: true, Data: o})
}

// DeleteOrder handles DELETE /orders/{id} for admins.
func (a *API) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.repo.deleteOrder(id); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditOrderDeleted, r, userFromContext(r.Context()).ID, slog.String("order_id", id))
	writeJSON(w, http.StatusOK, DataResponse[struct{}]{Success: true})
}

func canViewOrder(u *userRecord, o *client.Order) bool {
	if u == nil {
		return false
	}
	if u.Role.IsAdmin() || (o.User != nil && o.User.ID == u.ID) {
		return true
	}
	if u.Role == identity.RoleStoreAdmin && u.StoreID != "" {
		for _, it := range o.Items {
			if identity.RefID(it.StoreID) == u.StoreID {
				return true
			}
		}
	}
	return false
}
