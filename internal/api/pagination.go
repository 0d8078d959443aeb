package api

import (
	"net/http"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

const (
	defaultPage    = 1
	defaultPerPage = 50
	maxPerPage     = 200
)

// PaginationParams holds parsed pagination and sorting query parameters.
type PaginationParams struct {
	Page    int
	PerPage int
	// SortBy and Descending are parallel: sortBy[]=name&descending[]=true.
	SortBy     []string
	Descending []bool
}

// ParsePagination extracts pagination parameters from the request.
// Defaults: page=1, itemsPerPage=50, capped at 200. Sort columns are
// checked against an allow-list by Order.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{
		Page:    defaultPage,
		PerPage: defaultPerPage,
	}
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	if v := q.Get("itemsPerPage"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.PerPage = n
			if p.PerPage > maxPerPage {
				p.PerPage = maxPerPage
			}
		}
	}
	p.SortBy = q["sortBy[]"]
	for _, v := range q["descending[]"] {
		p.Descending = append(p.Descending, v == "true" || v == "1")
	}
	return p
}

// Offset returns the database offset for the current page.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages calculates the total number of pages for a given total count.
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}

// Apply chains limit, offset and ordering onto a query. Sort columns not
// present in allowed are dropped; with no valid sort the query orders by
// id for stable pages.
func (p PaginationParams) Apply(db *gorm.DB, allowed map[string]bool) *gorm.DB {
	ordered := false
	for i, col := range p.SortBy {
		col = strings.TrimSpace(col)
		if !allowed[col] {
			continue
		}
		dir := "ASC"
		if i < len(p.Descending) && p.Descending[i] {
			dir = "DESC"
		}
		db = db.Order(col + " " + dir)
		ordered = true
	}
	if !ordered {
		db = db.Order("id ASC")
	}
	return db.Limit(p.PerPage).Offset(p.Offset())
}
