package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPageLimit = 12
	maxPageLimit     = 100
)

// pageParams is a parsed page/limit pair. Page is 1-based.
type pageParams struct {
	Page  int
	Limit int
}

// parsePagination reads the "page" and "limit" query parameters. Missing
// or invalid values fall back to page 1 and defaultPageLimit; limit is
// capped at maxPageLimit.
func parsePagination(r *http.Request) pageParams {
	q := r.URL.Query()
	p := pageParams{Page: 1, Limit: defaultPageLimit}
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Limit = min(n, maxPageLimit)
	}
	return p
}

// paginate returns the [start, end) window of a collection of total items
// and the number of pages. A page past the end yields start == end.
func (p pageParams) paginate(total int) (start, end, pages int) {
	start = min((p.Page-1)*p.Limit, total)
	end = min(start+p.Limit, total)
	pages = (total + p.Limit - 1) / p.Limit
	return start, end, pages
}
