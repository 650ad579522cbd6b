package cart

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
)

const (
	// DeliveryFee is charged on orders without a gold product when the
	// user has no coins.
	DeliveryFee = 20

	// PaymentCashOnDelivery is the only payment type offered.
	PaymentCashOnDelivery = "Cash on Delivery"

	defaultCountry = "India"
)

var (
	// ErrSignedOut is returned by Checkout without a signed-in user.
	ErrSignedOut = errors.New("cart: sign in to place an order")
	// ErrEmpty is returned by Checkout for an empty cart.
	ErrEmpty = errors.New("cart: cart is empty")

	mobileRE = regexp.MustCompile(`^\d{10}$`)
	zipRE    = regexp.MustCompile(`^\d{6}$`)
)

// OrderPlacer places orders on the backend.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, o client.Order) (*client.Order, error)
}

var _ OrderPlacer = (*client.Client)(nil)

// IdentityStore reads and replaces the signed-in user's cached identity.
// session.Manager implements it.
type IdentityStore interface {
	Identity() *identity.Identity
	SetIdentity(ident *identity.Identity) error
}

// CheckoutForm is the delivery form. DeliveryTime is "HH:MM" on the day of
// the order.
type CheckoutForm struct {
	Name         string
	Mobile       string
	Street       string
	City         string
	Zip          string
	DeliveryTime string
}

// PrefillForm fills the form from the user's saved name, mobile and
// address.
func PrefillForm(ident *identity.Identity) CheckoutForm {
	if ident == nil {
		return CheckoutForm{}
	}
	f := CheckoutForm{Name: ident.Name, Mobile: ident.Mobile}
	if ident.Address != nil {
		f.Street = ident.Address.Street
		f.City = ident.Address.City
		f.Zip = ident.Address.Zip
	}
	return f
}

// ValidationError is a form error meant to be shown to the user as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate checks the form and returns a *ValidationError describing the
// first problem.
func (f CheckoutForm) Validate() error {
	if strings.TrimSpace(f.Name) == "" || f.Mobile == "" || strings.TrimSpace(f.Street) == "" ||
		strings.TrimSpace(f.City) == "" || f.Zip == "" {
		return &ValidationError{"Please fill in all required fields"}
	}
	if !mobileRE.MatchString(f.Mobile) {
		return &ValidationError{"Please enter a valid 10-digit mobile number"}
	}
	if !zipRE.MatchString(f.Zip) {
		return &ValidationError{"Please enter a valid 6-digit ZIP code"}
	}
	if _, err := time.Parse("15:04", f.DeliveryTime); err != nil {
		return &ValidationError{"Please select a preferred delivery time"}
	}
	return nil
}

// DeliveryCharge is what the user will pay for delivery: nothing when they
// have a coin or the cart holds a gold product.
func DeliveryCharge(ident *identity.Identity, items []Item) float64 {
	if ident != nil && ident.Coins > 0 {
		return 0
	}
	if hasGold(items) {
		return 0
	}
	return DeliveryFee
}

func hasGold(items []Item) bool {
	for _, it := range items {
		if it.IsGold {
			return true
		}
	}
	return false
}

// BuildOrder turns the cart lines and a validated form into an order
// request. The full delivery fee is always sent; the backend waives it for
// gold orders and spends a coin otherwise.
func BuildOrder(items []Item, form CheckoutForm, now time.Time) (client.Order, error) {
	at, err := time.Parse("15:04", form.DeliveryTime)
	if err != nil {
		return client.Order{}, fmt.Errorf("parsing delivery time: %w", err)
	}
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())

	o := client.Order{
		Items: make([]client.OrderItem, 0, len(items)),
		ShippingAddress: client.ShippingAddress{
			Name:    strings.TrimSpace(form.Name),
			Street:  strings.TrimSpace(form.Street),
			City:    strings.TrimSpace(form.City),
			Zip:     form.Zip,
			Country: defaultCountry,
			Mobile:  form.Mobile,
		},
		PaymentMethod:         client.PaymentMethod{Type: PaymentCashOnDelivery},
		Shipping:              DeliveryFee,
		ScheduledDeliveryTime: &scheduled,
	}
	for _, it := range items {
		o.Items = append(o.Items, client.OrderItem{
			Product:  it.ID,
			Name:     it.Title,
			Quantity: it.Quantity,
			Price:    it.Price,
			Image:    it.Image,
			StoreID:  it.StoreID,
			Unit:     it.Unit,
			IsGold:   it.IsGold,
		})
		o.Subtotal += it.Price * float64(it.Quantity)
	}
	o.Total = o.Subtotal + o.Shipping
	return o, nil
}

// Checkout places an order for the cart. The form's address and mobile
// become the user's saved ones before the order is sent. On success the
// cart is emptied, and the cached coin balance drops by one when a coin
// paid the delivery.
func (c *Cart) Checkout(ctx context.Context, orders OrderPlacer, ids IdentityStore, form CheckoutForm, now time.Time) (*client.Order, error) {
	ident := ids.Identity()
	if ident == nil {
		return nil, ErrSignedOut
	}
	items := c.Items()
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	for _, it := range items {
		if !it.Available() {
			return nil, &ValidationError{fmt.Sprintf("%s is no longer available", it.Title)}
		}
	}
	order, err := BuildOrder(items, form, now)
	if err != nil {
		return nil, err
	}

	ident.Mobile = order.ShippingAddress.Mobile
	ident.Address = &identity.Address{
		Street:  order.ShippingAddress.Street,
		City:    order.ShippingAddress.City,
		Zip:     order.ShippingAddress.Zip,
		Country: defaultCountry,
	}
	if err := ids.SetIdentity(ident); err != nil {
		c.logger.Warn("failed to save delivery address", "error", err)
	}

	placed, err := orders.CreateOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("placing order: %w", err)
	}
	c.logger.Info("order placed", "order_id", placed.ID, "total", placed.Total, "items", len(placed.Items))

	if err := c.Clear(); err != nil {
		c.logger.Warn("failed to clear cart after order", "order_id", placed.ID, "error", err)
	}
	if coinSpent(placed, ident) {
		ident.Coins--
		if err := ids.SetIdentity(ident); err != nil {
			c.logger.Warn("failed to update coin balance", "error", err)
		}
	}
	return placed, nil
}

func coinSpent(placed *client.Order, ident *identity.Identity) bool {
	if placed.Shipping != 0 || ident.Coins <= 0 {
		return false
	}
	for _, it := range placed.Items {
		if it.IsGold {
			return false
		}
	}
	return true
}
