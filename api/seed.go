package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
)

var seedEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// seedStores, seedCategories and seedProducts are the demo catalog. Ids
// are fixed so seeding twice overwrites instead of duplicating.
var seedStores = []client.Store{
	{ID: "store-dairy", Name: "Dairy Barn", Type: []string{"dairy"}, City: "Chennai",
		OpeningTime: "06:00", ClosingTime: "21:00", Rating: 4.5, IsActive: true},
	{ID: "store-bakery", Name: "Sunrise Bakery", Type: []string{"bakery"}, City: "Chennai",
		Timing: "7:00 AM - 9:00 PM", Rating: 4.2, IsActive: true},
	{ID: "store-night", Name: "Night Owl Mart", Type: []string{"grocery"}, City: "Chennai",
		OpeningTime: "20:00", ClosingTime: "04:00", Rating: 3.9, IsActive: true},
}

var seedCategories = []client.Category{
	{ID: "cat-dairy", Name: "Dairy", NameTA: "பால் பொருட்கள்", IsActive: true},
	{ID: "cat-bakery", Name: "Bakery", NameTA: "பேக்கரி", IsActive: true},
	{ID: "cat-groceries", Name: "Groceries", NameTA: "மளிகை", IsActive: true},
	{ID: "cat-seasonal", Name: "Seasonal", IsActive: false},
}

type seedProduct struct {
	id, title, category, store, unit string
	price                            float64
	featured, gold, unavailable      bool
}

var seedProducts = []seedProduct{
	{id: "prod-milk-dairy", title: "Milk", category: "Dairy", store: "store-dairy", unit: "1L", price: 30, featured: true},
	{id: "prod-curd", title: "Curd", category: "Dairy", store: "store-dairy", unit: "500g", price: 35},
	{id: "prod-paneer", title: "Paneer", category: "Dairy", store: "store-dairy", unit: "200g", price: 90, gold: true},
	{id: "prod-ghee", title: "Ghee", category: "Dairy", store: "store-dairy", unit: "500ml", price: 320, unavailable: true},
	{id: "prod-bread", title: "Bread", category: "Bakery", store: "store-bakery", unit: "400g", price: 45, featured: true},
	{id: "prod-bun", title: "Sweet Bun", category: "Bakery", store: "store-bakery", unit: "4 pcs", price: 40},
	{id: "prod-cake", title: "Plum Cake", category: "Bakery", store: "store-bakery", unit: "250g", price: 150, gold: true},
	{id: "prod-milk-night", title: "Milk", category: "Dairy", store: "store-night", unit: "1L", price: 32},
	{id: "prod-rice", title: "Ponni Rice", category: "Groceries", store: "store-night", unit: "5kg", price: 310},
	{id: "prod-dal", title: "Toor Dal", category: "Groceries", store: "store-night", unit: "1kg", price: 160},
	{id: "prod-oil", title: "Groundnut Oil", category: "Groceries", store: "store-night", unit: "1L", price: 210, featured: true},
	{id: "prod-bread-night", title: "bread", category: "Bakery", store: "store-night", unit: "400g", price: 48},
	{id: "prod-sugar", title: "Sugar", category: "Groceries", store: "store-night", unit: "1kg", price: 48},
	{id: "prod-salt", title: "Salt", store: "store-night", unit: "1kg", price: 25},
}

// Seed writes the demo stores, categories and products.
func (a *API) Seed() error {
	stores := make([]client.Store, len(seedStores))
	for i, s := range seedStores {
		s.CreatedAt = seedEpoch.Add(time.Duration(i) * time.Hour)
		stores[i] = s
	}
	if err := a.repo.putStores(stores...); err != nil {
		return fmt.Errorf("seeding stores: %w", err)
	}
	if err := a.repo.putCategories(seedCategories...); err != nil {
		return fmt.Errorf("seeding categories: %w", err)
	}

	products := make([]client.Product, len(seedProducts))
	for i, sp := range seedProducts {
		created := seedEpoch.Add(time.Duration(i) * time.Minute)
		products[i] = client.Product{
			ID:          sp.id,
			Title:       sp.title,
			Description: fmt.Sprintf("%s (%s)", sp.title, sp.unit),
			Price:       sp.price,
			Category:    sp.category,
			Stock:       100,
			Unit:        sp.unit,
			Featured:    sp.featured,
			IsAvailable: !sp.unavailable,
			IsGold:      sp.gold,
			StoreID:     &identity.Ref{ID: sp.store},
			CreatedAt:   created,
			UpdatedAt:   created,
		}
	}
	if err := a.repo.putProducts(products...); err != nil {
		return fmt.Errorf("seeding products: %w", err)
	}
	a.logger.Info("seeded demo catalog",
		"stores", len(stores), "categories", len(seedCategories), "products", len(products))
	return nil
}

// CreateAccount adds an account with the given role, for bootstrapping
// admins. Store admins are bound to storeID.
func (a *API) CreateAccount(name, email, password string, role identity.Role, storeID string) (*identity.Identity, error) {
	req := RegisterRequest{Name: name, Email: email, Password: password}
	if msg := validateRegistration(&req); msg != "" {
		return nil, fmt.Errorf("api: %s", strings.ToLower(msg))
	}
	if !role.Valid() {
		return nil, fmt.Errorf("api: unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &userRecord{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if role == identity.RoleStoreAdmin {
		u.StoreID = storeID
	}
	if err := a.repo.createUser(u); err != nil {
		return nil, err
	}
	return u.public(), nil
}
