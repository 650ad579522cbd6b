// Package catalog holds the product-list helpers of the storefront: store
// opening hours, grouping of identical products sold by several stores, and
// the open-first ordering used on listing pages.
package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
)

// UnknownStore is shown when a product's store cannot be resolved.
const UnknownStore = "Unknown Store"

var timingRE = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(AM|PM)?\s*-\s*(\d{1,2}):(\d{2})\s*(AM|PM)?`)

// ParseClock converts "HH:MM" (seconds, if present, are ignored) to
// minutes since midnight.
func ParseClock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || m < 0 {
		return 0, false
	}
	return h*60 + m, true
}

// IsStoreOpen reports whether store is open at now's wall-clock time.
// openingTime/closingTime take precedence over the free-form timing string.
// Hours that cannot be determined count as open; a nil store is closed.
func IsStoreOpen(store *client.Store, now time.Time) bool {
	if store == nil {
		return false
	}
	current := now.Hour()*60 + now.Minute()

	if store.OpeningTime != "" && store.ClosingTime != "" {
		open, ok1 := ParseClock(store.OpeningTime)
		closing, ok2 := ParseClock(store.ClosingTime)
		if !ok1 || !ok2 {
			return true
		}
		return within(current, open, closing)
	}

	if store.Timing != "" {
		if open, closing, ok := parseTiming(store.Timing); ok {
			return within(current, open, closing)
		}
	}
	return true
}

// within handles closing times past midnight.
func within(current, open, closing int) bool {
	if closing < open {
		return current >= open || current < closing
	}
	return current >= open && current < closing
}

// parseTiming reads strings like "9:00 AM - 9:00 PM" or "06:00-23:30".
func parseTiming(timing string) (open, closing int, ok bool) {
	m := timingRE.FindStringSubmatch(timing)
	if m == nil {
		return 0, 0, false
	}
	open = clock12(m[1], m[2], m[3])
	closing = clock12(m[4], m[5], m[6])
	return open, closing, true
}

func clock12(hour, minute, period string) int {
	h, _ := strconv.Atoi(hour)
	m, _ := strconv.Atoi(minute)
	switch strings.ToUpper(period) {
	case "PM":
		if h != 12 {
			h += 12
		}
	case "AM":
		if h == 12 {
			h = 0
		}
	}
	return h*60 + m
}

// StoreIndex looks stores up by id.
type StoreIndex map[string]*client.Store

// IndexStores builds a StoreIndex.
func IndexStores(stores []client.Store) StoreIndex {
	idx := make(StoreIndex, len(stores))
	for i := range stores {
		idx[stores[i].ID] = &stores[i]
	}
	return idx
}

// StoreName resolves the display name of a product's store: the populated
// name when the reference carries one, otherwise the indexed store's name.
func (idx StoreIndex) StoreName(ref *identity.Ref) string {
	if ref == nil || (ref.ID == "" && ref.Name == "") {
		return UnknownStore
	}
	if ref.Name != "" {
		return ref.Name
	}
	if s, ok := idx[ref.ID]; ok && s.Name != "" {
		return s.Name
	}
	return UnknownStore
}

// productOpen reports whether the store selling p is open. A product whose
// store is not indexed counts as open.
func (idx StoreIndex) productOpen(p *client.Product, now time.Time) bool {
	s, ok := idx[identity.RefID(p.StoreID)]
	if !ok {
		return true
	}
	return IsStoreOpen(s, now)
}
