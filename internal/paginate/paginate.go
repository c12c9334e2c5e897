// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package paginate slices an already-loaded ordered sequence into pages.
package paginate

const (
	// WideBreakpoint is the viewport width (CSS px) from which wide pages apply.
	WideBreakpoint = 1024
	// WidePageSize is the page size on wide viewports.
	WidePageSize = 10
	// NarrowPageSize is the page size on narrow or unknown viewports.
	NarrowPageSize = 6
)

// PageSizeForWidth maps a viewport width to a page size. Unknown widths
// (zero or negative) get the narrow size.
func PageSizeForWidth(width int) int {
	if width >= WideBreakpoint {
		return WidePageSize
	}
	return NarrowPageSize
}

// TotalPages is max(1, ceil(n/size)); size below 1 counts as 1.
func TotalPages(n, size int) int {
	if size < 1 {
		size = 1
	}
	if n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// Window returns items [(page-1)*size, page*size) with page first clamped
// to [1, TotalPages]. The result shares storage with items.
func Window[T any](items []T, page, size int) []T {
	if size < 1 {
		size = 1
	}
	page = clamp(page, TotalPages(len(items), size))
	start := (page - 1) * size
	if start >= len(items) {
		return items[len(items):]
	}
	end := min(start+size, len(items))
	return items[start:end:end]
}

// Paginator tracks the current page over a sequence. The zero value is not
// usable; create one with New.
//
// Changing the page size does not move the current page. Callers that
// change it must call Clamp themselves when they want the page pulled back
// into range.
type Paginator[T any] struct {
	items []T
	size  int
	page  int
}

// New creates a Paginator on page 1. A size below 1 is raised to 1.
func New[T any](items []T, size int) *Paginator[T] {
	return &Paginator[T]{items: items, size: max(size, 1), page: 1}
}

// SetItems replaces the sequence. The current page is kept as is.
func (p *Paginator[T]) SetItems(items []T) {
	p.items = items
}

// SetPageSize changes the page size, ignoring values below 1.
func (p *Paginator[T]) SetPageSize(size int) {
	if size >= 1 {
		p.size = size
	}
}

// Clamp pulls the current page into [1, TotalPages].
func (p *Paginator[T]) Clamp() {
	p.page = clamp(p.page, p.TotalPages())
}

// Next advances one page, stopping at the last.
func (p *Paginator[T]) Next() {
	p.page = clamp(p.page+1, p.TotalPages())
}

// Prev goes back one page, stopping at the first.
func (p *Paginator[T]) Prev() {
	p.page = clamp(p.page-1, p.TotalPages())
}

// Goto jumps to page n, clamped into range.
func (p *Paginator[T]) Goto(n int) {
	p.page = clamp(n, p.TotalPages())
}

// Page returns the current page number. It may exceed TotalPages after the
// items shrink or the page size grows, until Clamp is called.
func (p *Paginator[T]) Page() int { return p.page }

// PageSize returns the current page size.
func (p *Paginator[T]) PageSize() int { return p.size }

// Len returns the number of items.
func (p *Paginator[T]) Len() int { return len(p.items) }

// TotalPages returns the page count for the current items and size.
func (p *Paginator[T]) TotalPages() int {
	return TotalPages(len(p.items), p.size)
}

// Window returns the items of the current page.
func (p *Paginator[T]) Window() []T {
	return Window(p.items, p.page, p.size)
}

// Info describes the current position, for responses.
type Info struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// Info returns the current position.
func (p *Paginator[T]) Info() Info {
	return Info{
		Page:       clamp(p.page, p.TotalPages()),
		PageSize:   p.size,
		TotalPages: p.TotalPages(),
		Total:      len(p.items),
	}
}

func clamp(page, total int) int {
	if page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}
