package shared

import (
	"net/http"
	"strconv"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 20

// Pagination contains metadata for paginated listings rendered by templates.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	HasPrev    bool
	HasNext    bool
}

// PageWindow is a 1-indexed page cursor over an in-memory slice. The current
// page is stored as requested and clamped on every read, so changing the
// source or the page size never leaves it out of range.
type PageWindow[T any] struct {
	items    []T
	pageSize int
	page     int
}

// NewPageWindow creates a window positioned on the first page.
func NewPageWindow[T any](items []T, pageSize int) *PageWindow[T] {
	w := &PageWindow[T]{items: items, page: 1}
	w.SetPageSize(pageSize)
	return w
}

// SetItems replaces the source sequence.
func (w *PageWindow[T]) SetItems(items []T) {
	w.items = items
}

// SetPageSize changes the page size; non-positive values fall back to
// DefaultPageSize.
func (w *PageWindow[T]) SetPageSize(size int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	w.pageSize = size
}

// PageSize returns the effective page size.
func (w *PageWindow[T]) PageSize() int {
	return w.pageSize
}

// Len returns the number of items in the source.
func (w *PageWindow[T]) Len() int {
	return len(w.items)
}

// TotalPages is ceil(len / pageSize); zero for an empty source.
func (w *PageWindow[T]) TotalPages() int {
	return (len(w.items) + w.pageSize - 1) / w.pageSize
}

// Page returns the current page clamped into [1, max(1, TotalPages)].
func (w *PageWindow[T]) Page() int {
	return w.clamp(w.page)
}

// GoToPage moves to page n, clamped into the valid range.
func (w *PageWindow[T]) GoToPage(n int) {
	w.page = w.clamp(n)
}

// Next advances one page if possible.
func (w *PageWindow[T]) Next() {
	w.GoToPage(w.Page() + 1)
}

// Prev moves back one page if possible.
func (w *PageWindow[T]) Prev() {
	w.GoToPage(w.Page() - 1)
}

// Reset returns to the first page.
func (w *PageWindow[T]) Reset() {
	w.page = 1
}

// HasNextPage reports whether a later page exists.
func (w *PageWindow[T]) HasNextPage() bool {
	return w.Page() < w.TotalPages()
}

// HasPrevPage reports whether an earlier page exists.
func (w *PageWindow[T]) HasPrevPage() bool {
	return w.Page() > 1
}

// Items returns the slice visible on the current page. The result shares the
// backing array of the source.
func (w *PageWindow[T]) Items() []T {
	start := (w.Page() - 1) * w.pageSize
	if start >= len(w.items) {
		return []T{}
	}
	end := start + w.pageSize
	if end > len(w.items) {
		end = len(w.items)
	}
	return w.items[start:end]
}

// Meta summarises the window for templates.
func (w *PageWindow[T]) Meta() Pagination {
	return Pagination{
		Page:       w.Page(),
		PerPage:    w.pageSize,
		Total:      len(w.items),
		TotalPages: w.TotalPages(),
		HasPrev:    w.HasPrevPage(),
		HasNext:    w.HasNextPage(),
	}
}

func (w *PageWindow[T]) clamp(n int) int {
	upper := w.TotalPages()
	if upper < 1 {
		upper = 1
	}
	if n < 1 {
		return 1
	}
	if n > upper {
		return upper
	}
	return n
}

// PageFromQuery reads the 1-indexed "page" query parameter. Missing or
// malformed values yield 1; PageWindow clamps the upper bound.
func PageFromQuery(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}
