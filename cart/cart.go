// Package cart keeps the shopping cart of the signed-in user, or of the
// guest, in the local store. Each user has their own cart under
// storage.CartKey; the cart follows the session through IdentityChanged.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/events"
	"github.com/jmcleod/homly/identity"
	"github.com/jmcleod/homly/storage"
)

// refreshConcurrency bounds concurrent product fetches in Refresh.
const refreshConcurrency = 8

// Item is one cart line. Only the fields needed to render and price the
// cart are kept.
type Item struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Price       float64       `json:"price"`
	Image       string        `json:"image,omitempty"`
	StoreID     *identity.Ref `json:"storeId"`
	Quantity    int           `json:"quantity"`
	Unit        string        `json:"unit"`
	IsGold      bool          `json:"isGold,omitempty"`
	IsAvailable *bool         `json:"isAvailable,omitempty"`
}

// Available reports whether the item can be ordered. Items never refreshed
// are assumed available.
func (it Item) Available() bool {
	return it.IsAvailable == nil || *it.IsAvailable
}

// ProductGetter fetches a single product.
type ProductGetter interface {
	Product(ctx context.Context, id string) (*client.Product, error)
}

var _ ProductGetter = (*client.Client)(nil)

// Option configures a Cart.
type Option func(*Cart)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cart) {
		c.logger = logger
	}
}

// Cart is safe for concurrent use.
type Cart struct {
	store       storage.Store
	logger      *slog.Logger
	unsubscribe func()

	mu     sync.Mutex
	userID string
	items  []Item
}

// New loads the cart of userID ("" means guest), migrating the legacy
// single cart key first. When bus is non-nil the cart switches to the new
// user's cart on every IdentityChanged.
func New(store storage.Store, userID string, bus *events.Bus, opts ...Option) (*Cart, error) {
	if store == nil {
		return nil, errors.New("cart: store is required")
	}
	if userID == "" {
		userID = identity.GuestID
	}
	c := &Cart{store: store, userID: userID}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("component", "cart")

	if err := c.migrateLegacy(); err != nil {
		c.logger.Warn("legacy cart migration failed", "error", err)
	}
	c.items = c.load(userID)

	if bus != nil {
		c.unsubscribe = bus.IdentityChanged.Subscribe(c.onIdentityChanged)
	}
	return c, nil
}

// Close stops following identity changes.
func (c *Cart) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// migrateLegacy moves the pre-per-user "cart" key into the current user's
// cart if that cart does not exist yet, and drops it otherwise.
func (c *Cart) migrateLegacy() error {
	legacy, err := c.store.Get(storage.KeyLegacyCart)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return c.store.Delete(storage.KeyLegacyCart)
	}
	key := storage.CartKey(c.userID)
	_, err = c.store.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		var items []Item
		if jerr := json.Unmarshal([]byte(legacy), &items); jerr != nil {
			return fmt.Errorf("decoding legacy cart: %w", jerr)
		}
		c.logger.Info("migrating legacy cart", "user_id", c.userID, "items", len(items))
		return c.store.Batch(func(tx storage.BatchTx) error {
			if err := tx.Put(key, legacy); err != nil {
				return err
			}
			return tx.Delete(storage.KeyLegacyCart)
		})
	}
	return c.store.Delete(storage.KeyLegacyCart)
}

func (c *Cart) load(userID string) []Item {
	raw, err := c.store.Get(storage.CartKey(userID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("failed to read cart", "user_id", userID, "error", err)
		}
		return nil
	}
	var items []Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		c.logger.Warn("discarding unreadable cart", "user_id", userID, "error", err)
		return nil
	}
	return items
}

// saveLocked writes the current items. Must hold c.mu.
func (c *Cart) saveLocked() error {
	items := c.items
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding cart: %w", err)
	}
	if err := c.store.Put(storage.CartKey(c.userID), string(data)); err != nil {
		return fmt.Errorf("saving cart: %w", err)
	}
	return nil
}

func (c *Cart) onIdentityChanged(ev events.IdentityChanged) {
	userID := ev.UserID
	if userID == "" {
		userID = identity.GuestID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if userID == c.userID {
		return
	}
	c.userID = userID
	c.items = c.load(userID)
	c.logger.Debug("switched cart", "user_id", userID, "reason", ev.Reason, "items", len(c.items))
}

// UserID returns the id the cart is currently kept under.
func (c *Cart) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Add puts one unit of p in the cart, or increments its quantity.
func (c *Cart) Add(p client.Product) error {
	if p.ID == "" {
		return errors.New("cart: product has no id")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(p.ID); i >= 0 {
		c.items[i].Quantity++
		return c.saveLocked()
	}
	var store *identity.Ref
	if p.StoreID != nil {
		store = &identity.Ref{ID: p.StoreID.ID}
	}
	c.items = append(c.items, Item{
		ID:       p.ID,
		Title:    p.Title,
		Price:    p.Price,
		Image:    p.Image,
		StoreID:  store,
		Quantity: 1,
		Unit:     p.Unit,
		IsGold:   p.IsGold,
	})
	return c.saveLocked()
}

// Remove drops a product from the cart.
func (c *Cart) Remove(productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(productID)
	if i < 0 {
		return nil
	}
	c.items = slices.Delete(c.items, i, i+1)
	return c.saveLocked()
}

// UpdateQuantity sets the quantity of a product. A quantity below one
// removes it.
func (c *Cart) UpdateQuantity(productID string, quantity int) error {
	if quantity < 1 {
		return c.Remove(productID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(productID)
	if i < 0 {
		return nil
	}
	c.items[i].Quantity = quantity
	return c.saveLocked()
}

// Clear empties the cart.
func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	return c.saveLocked()
}

// Items returns a copy of the cart lines in insertion order.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Total is the sum of price times quantity.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, it := range c.items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// Count is the number of units in the cart.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

func (c *Cart) indexLocked(productID string) int {
	return slices.IndexFunc(c.items, func(it Item) bool { return it.ID == productID })
}

// Refresh re-fetches every product in the cart and updates the stored
// product fields, gold flag included. An item whose fetch fails is kept as
// is. The cart is saved only when something changed, and not at all if the
// user switched while fetching.
func (c *Cart) Refresh(ctx context.Context, products ProductGetter) error {
	c.mu.Lock()
	userID := c.userID
	items := slices.Clone(c.items)
	c.mu.Unlock()
	if len(items) == 0 {
		return nil
	}

	updated := make([]Item, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i, it := range items {
		g.Go(func() error {
			updated[i] = it
			p, err := products.Product(gctx, it.ID)
			if err != nil || p == nil {
				c.logger.Warn("failed to refresh cart item", "product_id", it.ID, "error", client.Message(err))
				return nil
			}
			updated[i] = refreshed(it, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != userID || !slices.EqualFunc(c.items, items, sameItem) {
		c.logger.Debug("cart changed during refresh, dropping result")
		return nil
	}
	if slices.EqualFunc(updated, items, sameItem) {
		return nil
	}
	c.items = updated
	return c.saveLocked()
}

func refreshed(it Item, p *client.Product) Item {
	if p.Title != "" {
		it.Title = p.Title
	}
	it.Price = p.Price
	it.Image = p.Image
	if p.Unit != "" {
		it.Unit = p.Unit
	}
	if id := identity.RefID(p.StoreID); id != "" {
		it.StoreID = &identity.Ref{ID: id}
	}
	it.IsGold = p.IsGold
	available := p.IsAvailable
	it.IsAvailable = &available
	return it
}

func sameItem(a, b Item) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Price == b.Price &&
		a.Image == b.Image &&
		identity.RefID(a.StoreID) == identity.RefID(b.StoreID) &&
		a.Quantity == b.Quantity &&
		a.Unit == b.Unit &&
		a.IsGold == b.IsGold &&
		a.Available() == b.Available() &&
		(a.IsAvailable == nil) == (b.IsAvailable == nil)
}
