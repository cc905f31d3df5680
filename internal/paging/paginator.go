// Package paging slices a normalized feed into fixed-size pages and tracks
// which rows the user has selected.
package paging

import "fmt"

// Paginator keeps the current page number for a sequence of T. Pages are
// 1-based. The item count is whatever was last passed to Slice or
// Reconcile.
type Paginator[T any] struct {
	size  int
	page  int
	count int
}

func New[T any](pageSize int) (*Paginator[T], error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	return &Paginator[T]{size: pageSize, page: 1}, nil
}

func (p *Paginator[T]) PageSize() int { return p.size }

func (p *Paginator[T]) Page() int { return p.page }

// Offset is the number of items before the current page.
func (p *Paginator[T]) Offset() int { return (p.page - 1) * p.size }

// TotalPages is ceil(count/size), reported as 1 for an empty feed.
func (p *Paginator[T]) TotalPages() int {
	n := (p.count + p.size - 1) / p.size
	if n == 0 {
		return 1
	}
	return n
}

// Slice returns the current page of all. It is empty when the page lies
// past the end of all; it never panics.
func (p *Paginator[T]) Slice(all []T) []T {
	p.count = len(all)

	start := p.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := min(start+p.size, len(all))
	return all[start:end]
}

func (p *Paginator[T]) NextPage() {
	p.page = min(p.page+1, p.TotalPages())
}

func (p *Paginator[T]) PrevPage() {
	p.page = max(p.page-1, 1)
}

// Goto moves to page n, clamped to [1, TotalPages].
func (p *Paginator[T]) Goto(n int) {
	p.page = min(max(n, 1), p.TotalPages())
}

// Reconcile records a new item count and pulls the page back inside the
// valid range. Slice alone does not move the page.
func (p *Paginator[T]) Reconcile(count int) {
	p.count = count
	p.page = min(p.page, p.TotalPages())
}
