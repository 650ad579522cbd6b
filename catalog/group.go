package catalog

import (
	"slices"
	"strings"
	"time"

	"github.com/jmcleod/homly/client"
)

// OtherCategory collects products without a category.
const OtherCategory = "Other"

// Entry is one tile of a product listing: either a single product or a
// group of products with the same title sold by several stores.
type Entry struct {
	// Product is the product shown, the first of its group.
	Product client.Product
	// ID is the product id, or "group-<first id>" for a group.
	ID           string
	IsGroup      bool
	StoreCount   int
	AnyStoreOpen bool
	MinPrice     float64
	MaxPrice     float64
}

// GroupByName merges products whose trimmed titles match case-insensitively.
// Entries keep the order in which each title first appears; products
// without a title are dropped.
func GroupByName(products []client.Product, stores StoreIndex, now time.Time) []Entry {
	var order []string
	groups := make(map[string][]client.Product)
	for _, p := range products {
		key := strings.ToLower(strings.TrimSpace(p.Title))
		if key == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	entries := make([]Entry, 0, len(order))
	for _, key := range order {
		group := groups[key]
		first := group[0]
		if len(group) == 1 {
			entries = append(entries, Entry{
				Product:      first,
				ID:           first.ID,
				StoreCount:   1,
				AnyStoreOpen: stores.productOpen(&first, now),
				MinPrice:     first.Price,
				MaxPrice:     first.Price,
			})
			continue
		}
		e := Entry{
			Product:    first,
			ID:         "group-" + first.ID,
			IsGroup:    true,
			StoreCount: len(group),
			MinPrice:   first.Price,
			MaxPrice:   first.Price,
		}
		for i := range group {
			e.MinPrice = min(e.MinPrice, group[i].Price)
			e.MaxPrice = max(e.MaxPrice, group[i].Price)
			if !e.AnyStoreOpen && stores.productOpen(&group[i], now) {
				e.AnyStoreOpen = true
			}
		}
		entries = append(entries, e)
	}
	return entries
}

// Entries wraps products one-to-one without grouping.
func Entries(products []client.Product, stores StoreIndex, now time.Time) []Entry {
	entries := make([]Entry, len(products))
	for i, p := range products {
		entries[i] = Entry{
			Product:      p,
			ID:           p.ID,
			StoreCount:   1,
			AnyStoreOpen: stores.productOpen(&products[i], now),
			MinPrice:     p.Price,
			MaxPrice:     p.Price,
		}
	}
	return entries
}

// Category is a named run of products.
type Category struct {
	Name     string
	Products []client.Product
}

// GroupByCategory splits products by category, ordered by first
// appearance. Products without a category go to OtherCategory.
func GroupByCategory(products []client.Product) []Category {
	var cats []Category
	index := make(map[string]int)
	for _, p := range products {
		name := p.Category
		if name == "" {
			name = OtherCategory
		}
		i, ok := index[name]
		if !ok {
			i = len(cats)
			index[name] = i
			cats = append(cats, Category{Name: name})
		}
		cats[i].Products = append(cats[i].Products, p)
	}
	return cats
}

// SortByOpenAndGold orders entries open before closed, then gold before
// regular, keeping the original order otherwise. The input is not
// modified.
func SortByOpenAndGold(entries []Entry) []Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b Entry) int {
		if a.AnyStoreOpen != b.AnyStoreOpen {
			if a.AnyStoreOpen {
				return -1
			}
			return 1
		}
		if a.Product.IsGold != b.Product.IsGold {
			if a.Product.IsGold {
				return -1
			}
			return 1
		}
		return 0
	})
	return out
}
