package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/homly/client"
	"github.com/jmcleod/homly/identity"
)

// productFilter is the parsed query of GET /products.
type productFilter struct {
	category  string
	search    string
	featured  *bool
	storeID   string
	available *bool
}

func parseProductFilter(r *http.Request, staff bool) productFilter {
	q := r.URL.Query()
	f := productFilter{
		category: q.Get("category"),
		search:   strings.ToLower(strings.TrimSpace(q.Get("search"))),
		storeID:  q.Get("storeId"),
	}
	if v := q.Get("featured"); v != "" {
		b := v == "true"
		f.featured = &b
	}
	switch {
	case !staff:
		t := true
		f.available = &t
	case q.Get("isAvailable") != "":
		b := q.Get("isAvailable") == "true"
		f.available = &b
	}
	return f
}

func (f productFilter) match(p *client.Product) bool {
	if f.available != nil && p.IsAvailable != *f.available {
		return false
	}
	if f.category != "" && p.Category != f.category {
		return false
	}
	if f.featured != nil && p.Featured != *f.featured {
		return false
	}
	if f.storeID != "" && identity.RefID(p.StoreID) != f.storeID {
		return false
	}
	if f.search != "" &&
		!strings.Contains(strings.ToLower(p.Title), f.search) &&
		!strings.Contains(strings.ToLower(p.Description), f.search) {
		return false
	}
	return true
}

func isStaff(r *http.Request) bool {
	u := userFromContext(r.Context())
	return u != nil && u.Role.IsStaff()
}

// ListProducts handles GET /products. Guests and customers only see
// available products; staff see everything unless they filter on
// isAvailable.
func (a *API) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := parseProductFilter(r, isStaff(r))
	page := parsePagination(r)

	all, err := a.repo.products()
	if err != nil {
		mapError(w, err)
		return
	}
	matched := slices.DeleteFunc(all, func(p client.Product) bool { return !filter.match(&p) })

	start, end, pages := page.paginate(len(matched))
	data := matched[start:end]
	if data == nil {
		data = []client.Product{}
	}
	writeJSON(w, http.StatusOK, PageResponse[client.Product]{
		Success: true,
		Count:   len(data),
		Total:   len(matched),
		Page:    page.Page,
		Pages:   pages,
		Data:    data,
	})
}

// GetProduct handles GET /products/{id} with the store name populated.
// Unavailable products are hidden from non-staff.
func (a *API) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.repo.product(chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	if !p.IsAvailable && !isStaff(r) {
		mapError(w, errProductNotFound)
		return
	}
	if id := identity.RefID(p.StoreID); id != "" {
		if s, err := a.repo.storeByID(id); err == nil {
			p.StoreID = &identity.Ref{ID: id, Name: s.Name}
		}
	}
	writeJSON(w, http.StatusOK, DataResponse[*client.Product]{Success: true, Data: p})
}

// ListStores handles GET /stores.
func (a *API) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := a.repo.stores()
	if err != nil {
		mapError(w, err)
		return
	}
	if stores == nil {
		stores = []client.Store{}
	}
	writeJSON(w, http.StatusOK, ListResponse[client.Store]{Success: true, Count: len(stores), Data: stores})
}

// GetStore handles GET /stores/{id}.
func (a *API) GetStore(w http.ResponseWriter, r *http.Request) {
	s, err := a.repo.storeByID(chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse[*client.Store]{Success: true, Data: s})
}

// ListCategories handles GET /categories.
func (a *API) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.repo.categories()
	if err != nil {
		mapError(w, err)
		return
	}
	if cats == nil {
		cats = []client.Category{}
	}
	writeJSON(w, http.StatusOK, ListResponse[client.Category]{Success: true, Count: len(cats), Data: cats})
}
