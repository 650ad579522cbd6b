package api

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
	"github.com/jmcleod/homly/storage"
)

// Record key prefixes. Every record is a JSON document in the store.
const (
	userPrefix      = "user:"
	userEmailPrefix = "user_email:"
	productPrefix   = "product:"
	storeRecPrefix  = "store:"
	categoryPrefix  = "category:"
	orderPrefix     = "order:"
)

// repository keeps the reference API's records in a storage.Store. Writes
// that must check uniqueness are serialized by mu.
type repository struct {
	store storage.Store
	mu    sync.Mutex
}

func newRepository(store storage.Store) *repository {
	return &repository{store: store}
}

func getDoc[T any](s storage.Store, key string, notFound error) (*T, error) {
	raw, err := s.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &v, nil
}

func listDocs[T any](s storage.Store, prefix string) ([]T, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	var out []T
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		raw, err := s.Get(k)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", k, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func putDoc(tx storage.BatchTx, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return tx.Put(key, string(data))
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (r *repository) createUser(u *userRecord) error {
	u.Email = identity.NormalizeEmail(u.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.store.Get(userEmailPrefix + u.Email); err == nil {
		return errUserExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return r.store.Batch(func(tx storage.BatchTx) error {
		if err := putDoc(tx, userPrefix+u.ID, u); err != nil {
			return err
		}
		return tx.Put(userEmailPrefix+u.Email, u.ID)
	})
}

// saveUser writes u, moving its email index entry when the email changed.
func (r *repository) saveUser(u *userRecord, previousEmail string) error {
	u.Email = identity.NormalizeEmail(u.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.Email != previousEmail {
		if id, err := r.store.Get(userEmailPrefix + u.Email); err == nil && id != u.ID {
			return errUserExists
		}
	}
	return r.store.Batch(func(tx storage.BatchTx) error {
		if err := putDoc(tx, userPrefix+u.ID, u); err != nil {
			return err
		}
		if u.Email != previousEmail {
			if previousEmail != "" {
				if err := tx.Delete(userEmailPrefix + previousEmail); err != nil {
					return err
				}
			}
			return tx.Put(userEmailPrefix+u.Email, u.ID)
		}
		return nil
	})
}

func (r *repository) userByID(id string) (*userRecord, error) {
	if id == "" {
		return nil, errUserNotFound
	}
	return getDoc[userRecord](r.store, userPrefix+id, errUserNotFound)
}

func (r *repository) userByEmail(email string) (*userRecord, error) {
	id, err := r.store.Get(userEmailPrefix + identity.NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.userByID(id)
}

func (r *repository) users() ([]userRecord, error) {
	users, err := listDocs[userRecord](r.store, userPrefix)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(users, func(a, b userRecord) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return users, nil
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

func (r *repository) putProducts(products ...client.Product) error {
	return r.store.Batch(func(tx storage.BatchTx) error {
		for i := range products {
			if err := putDoc(tx, productPrefix+products[i].ID, &products[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) product(id string) (*client.Product, error) {
	return getDoc[client.Product](r.store, productPrefix+id, errProductNotFound)
}

// products returns every product, newest first.
func (r *repository) products() ([]client.Product, error) {
	products, err := listDocs[client.Product](r.store, productPrefix)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(products, func(a, b client.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (r *repository) putStores(stores ...client.Store) error {
	return r.store.Batch(func(tx storage.BatchTx) error {
		for i := range stores {
			if err := putDoc(tx, storeRecPrefix+stores[i].ID, &stores[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) storeByID(id string) (*client.Store, error) {
	return getDoc[client.Store](r.store, storeRecPrefix+id, errStoreNotFound)
}

// stores returns every store, newest first.
func (r *repository) stores() ([]client.Store, error) {
	stores, err := listDocs[client.Store](r.store, storeRecPrefix)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(stores, func(a, b client.Store) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return stores, nil
}

func (r *repository) putCategories(categories ...client.Category) error {
	return r.store.Batch(func(tx storage.BatchTx) error {
		for i := range categories {
			if err := putDoc(tx, categoryPrefix+categories[i].ID, &categories[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// categories returns the active categories ordered by name.
func (r *repository) categories() ([]client.Category, error) {
	all, err := listDocs[client.Category](r.store, categoryPrefix)
	if err != nil {
		return nil, err
	}
	active := slices.DeleteFunc(all, func(c client.Category) bool { return !c.IsActive })
	slices.SortFunc(active, func(a, b client.Category) int { return cmp.Compare(a.Name, b.Name) })
	return active, nil
}

// toggleSaved adds productID to the user's saved list, or removes it when
// already present. exists is consulted only when adding.
func (r *repository) toggleSaved(userID, productID string, exists func(string) error) (*userRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.userByID(userID)
	if err != nil {
		return nil, err
	}
	if i := slices.Index(u.SavedProducts, productID); i >= 0 {
		u.SavedProducts = slices.Delete(u.SavedProducts, i, i+1)
	} else {
		if err := exists(productID); err != nil {
			return nil, err
		}
		u.SavedProducts = append(u.SavedProducts, productID)
	}
	err = r.store.Batch(func(tx storage.BatchTx) error {
		return putDoc(tx, userPrefix+u.ID, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// defaultCountry fills addresses written back from an order.
const defaultCountry = "India"

// placeOrder stores o for the user and applies the delivery rules: an order
// with a gold product ships free, otherwise one coin pays the delivery
// charge when the user has a coin and the order carries a charge. The
// shipping address becomes the user's saved address. It reports whether a
// coin was spent.
func (r *repository) placeOrder(o *client.Order, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.userByID(userID)
	if err != nil {
		return false, err
	}
	gold, err := r.markGold(o.Items)
	if err != nil {
		return false, err
	}

	coinUsed := false
	switch {
	case gold:
		o.Shipping = 0
		o.Total = o.Subtotal + o.Tax - o.Discount
	case u.Coins > 0 && o.Shipping > 0:
		u.Coins--
		coinUsed = true
		o.Shipping = 0
		o.Total = o.Subtotal + o.Tax - o.Discount
	}

	addr := o.ShippingAddress
	if addr.Mobile != "" {
		u.Mobile = addr.Mobile
	}
	country := addr.Country
	if country == "" {
		country = defaultCountry
	}
	u.Address = &identity.Address{Street: addr.Street, City: addr.City, State: addr.State, Zip: addr.Zip, Country: country}

	err = r.store.Batch(func(tx storage.BatchTx) error {
		if err := putDoc(tx, orderPrefix+o.ID, o); err != nil {
			return err
		}
		return putDoc(tx, userPrefix+u.ID, u)
	})
	return coinUsed, err
}

// markGold copies each product's gold flag onto its order line. Lines
// whose product no longer exists are not gold.
func (r *repository) markGold(items []client.OrderItem) (bool, error) {
	gold := false
	for i := range items {
		p, err := r.product(items[i].Product)
		switch {
		case errors.Is(err, errProductNotFound):
			items[i].IsGold = false
		case err != nil:
			return false, err
		default:
			items[i].IsGold = p.IsGold
		}
		gold = gold || items[i].IsGold
	}
	return gold, nil
}

func (r *repository) order(id string) (*client.Order, error) {
	return getDoc[client.Order](r.store, orderPrefix+id, errOrderNotFound)
}

// orders returns every order, newest first.
func (r *repository) orders() ([]client.Order, error) {
	orders, err := listDocs[client.Order](r.store, orderPrefix)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(orders, func(a, b client.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return orders, nil
}

// setOrderStatus moves an order to status. Cancelling an order whose
// delivery a coin paid for gives the coin back. It reports whether a coin
// was refunded.
func (r *repository) setOrderStatus(id string, status client.OrderStatus, now time.Time) (*client.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, err := r.order(id)
	if err != nil {
		return nil, false, err
	}

	var refund *userRecord
	if status == client.OrderCancelled && o.Status != client.OrderCancelled && o.Shipping == 0 {
		gold, err := r.markGold(o.Items)
		if err != nil {
			return nil, false, err
		}
		if !gold && o.User != nil {
			u, err := r.userByID(o.User.ID)
			switch {
			case err == nil:
				u.Coins++
				refund = u
			case !errors.Is(err, errUserNotFound):
				return nil, false, err
			}
		}
	}

	o.Status = status
	if status == client.OrderDelivered {
		delivered := now.UTC()
		o.DeliveredAt = &delivered
	}
	err = r.store.Batch(func(tx storage.BatchTx) error {
		if err := putDoc(tx, orderPrefix+o.ID, o); err != nil {
			return err
		}
		if refund != nil {
			return putDoc(tx, userPrefix+refund.ID, refund)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return o, refund != nil, nil
}

func (r *repository) deleteOrder(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.order(id); err != nil {
		return err
	}
	return r.store.Delete(orderPrefix + id)
}
