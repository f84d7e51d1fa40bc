// Package utils holds small helpers shared by the HTTP layer.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Clamp bounds n to [lo, hi].
func Clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Page is the window of a list selected by Paginate.
type Page struct {
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool { return p.Page < p.TotalPages }

// Paginate returns the page-th window (1-based) of pageSize items. Pages past
// the end are empty; page and pageSize below 1 are raised to 1.
func Paginate[T any](items []T, page, pageSize int) ([]T, Page) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	total := len(items)
	p := Page{Page: page, PageSize: pageSize, Total: total, TotalPages: (total + pageSize - 1) / pageSize}

	start := (page - 1) * pageSize
	if start >= total {
		return []T{}, p
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return items[start:end], p
}
