// Package paging holds one page of query results together with the numbers
// needed to navigate the rest.
package paging

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// Page-based validation limits.
const (
	DefaultPage     = 1
	MinPage         = 1
	DefaultPageSize = 50
	MinPageSize     = 1
	MaxPageSize     = 1000
)

// Validation errors.
var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = errors.New("page-size must be >= 1")
)

// Params is a 1-based page request.
type Params struct {
	Page     int
	PageSize int
}

// Validate checks Page and PageSize. maxPageSize <= 0 disables the upper
// bound.
func (p Params) Validate(maxPageSize int) error {
	if p.Page < MinPage {
		return fmt.Errorf("%w: got %d", ErrInvalidPage, p.Page)
	}
	if p.PageSize < MinPageSize {
		return fmt.Errorf("%w: got %d", ErrInvalidPageSize, p.PageSize)
	}
	if maxPageSize > 0 && p.PageSize > maxPageSize {
		return fmt.Errorf("%w: got %d, maximum is %d", ErrInvalidPageSize, p.PageSize, maxPageSize)
	}
	return nil
}

// Skip returns the number of items that precede page.
func (p Params) Skip() int { return Skip(p.Page, p.PageSize) }

// Skip returns (page-1)*pageSize.
func Skip(page, pageSize int) int {
	return (page - 1) * pageSize
}

// Result is one page of items.
type Result[T any] struct {
	items        []T
	totalResults int
	skipped      int
	itemsPerPage int
}

// NewResult wraps a page of items. totalResults counts every match, not just
// this page; skipped is how many matches precede the page.
func NewResult[T any](items []T, totalResults, skipped, itemsPerPage int) *Result[T] {
	return &Result[T]{
		items:        slices.Clone(items),
		totalResults: totalResults,
		skipped:      skipped,
		itemsPerPage: itemsPerPage,
	}
}

// TotalResults is the number of matches across all pages.
func (r *Result[T]) TotalResults() int { return r.totalResults }

// ItemsPerPage is the requested page size.
func (r *Result[T]) ItemsPerPage() int { return r.itemsPerPage }

// Count is the number of items on this page.
func (r *Result[T]) Count() int { return len(r.items) }

// Page is the 0-based index of this page.
func (r *Result[T]) Page() int {
	if r.itemsPerPage <= 0 {
		return 0
	}
	return r.skipped / r.itemsPerPage
}

// TotalPages is totalResults/itemsPerPage + 1, which overcounts by one when
// totalResults is an exact multiple of the page size. Meta has the exact count.
func (r *Result[T]) TotalPages() int {
	if r.itemsPerPage <= 0 {
		return 0
	}
	return r.totalResults/r.itemsPerPage + 1
}

// At returns the item at index i of this page.
func (r *Result[T]) At(i int) (T, bool) {
	if i < 0 || i >= len(r.items) {
		var zero T
		return zero, false
	}
	return r.items[i], true
}

// All iterates the page in order.
func (r *Result[T]) All() iter.Seq2[int, T] {
	return slices.All(r.items)
}

// Items returns a copy of the page.
func (r *Result[T]) Items() []T {
	return slices.Clone(r.items)
}

// Meta contains navigation data for a page, with a 1-based current page.
type Meta struct {
	CurrentPage int  `json:"current_page" yaml:"current_page"`
	PageSize    int  `json:"page_size"    yaml:"page_size"`
	TotalPages  int  `json:"total_pages"  yaml:"total_pages"`
	TotalItems  int  `json:"total_items"  yaml:"total_items"`
	HasPrevious bool `json:"has_previous" yaml:"has_previous"`
	HasNext     bool `json:"has_next"     yaml:"has_next"`
}

// Meta returns navigation data. TotalPages here is the exact ceiling, unlike
// Result.TotalPages.
func (r *Result[T]) Meta() Meta {
	current := r.Page() + 1
	pages := 0
	if r.itemsPerPage > 0 {
		pages = (r.totalResults + r.itemsPerPage - 1) / r.itemsPerPage
	}
	return Meta{
		CurrentPage: current,
		PageSize:    r.itemsPerPage,
		TotalPages:  pages,
		TotalItems:  r.totalResults,
		HasPrevious: current > 1,
		HasNext:     current < pages,
	}
}
