package shared

import "strconv"

const (
	// DefaultPageSize applies when a listing does not ask for a size.
	DefaultPageSize = 50
	// MaxPageSize caps any listing.
	MaxPageSize = 200
)

// Page is a bounded limit/offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// NewPage normalises 1-based page numbers and page sizes into a window.
func NewPage(page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return Page{Limit: perPage, Offset: (page - 1) * perPage}
}

// PageFromQuery reads "page" and "per_page" query values, ignoring junk.
func PageFromQuery(get func(string) string) Page {
	page, _ := strconv.Atoi(get("page"))
	perPage, _ := strconv.Atoi(get("per_page"))
	return NewPage(page, perPage)
}
