package store

import (
	"math"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps Offset()+Size within int for any normalized size.
	MaxPage = math.MaxInt32/MaxPageSize - 1
)

// Sortable product fields.
const (
	SortID        = "id"
	SortBrand     = "brand"
	SortModel     = "model"
	SortPrice     = "price"
	SortStock     = "stock"
	SortCreatedAt = "createdAt"
)

var productSortColumns = map[string]string{
	SortID:        "p.id",
	SortBrand:     "p.brand",
	SortModel:     "p.model",
	SortPrice:     "p.price",
	SortStock:     "p.stock",
	SortCreatedAt: "p.created_at",
}

// PageRequest is an offset page: Page is 0-based.
type PageRequest struct {
	Page   int
	Size   int
	SortBy string
	Desc   bool
}

// Normalize clamps page and size and defaults the sort field.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	if _, ok := productSortColumns[p.SortBy]; !ok {
		p.SortBy = SortID
	}
	return p
}

// Offset returns the number of items skipped before this page.
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// ParseSort reads "field" or "field,asc|desc".
func ParseSort(s string) (field string, desc bool) {
	parts := strings.SplitN(s, ",", 2)
	field = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		desc = strings.EqualFold(strings.TrimSpace(parts[1]), "desc")
	}
	return field, desc
}

// Page is one slice of a larger result. Total counts every match.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Size  int
}

// TotalPages returns how many pages of Size cover Total.
func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// paginate slices an already filtered and sorted list.
func paginate[T any](items []T, req PageRequest) Page[T] {
	total := len(items)
	start := req.Offset()
	if start < 0 || start > total {
		start = total
	}
	end := start + req.Size
	if end < start || end > total {
		end = total
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{Items: out, Total: int64(total), Page: req.Page, Size: req.Size}
}
