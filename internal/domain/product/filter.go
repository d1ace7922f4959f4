package product

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/ec-store/internal/infrastructure/store"
)

// FilterParams are the raw listing parameters as received from a client.
// Empty strings mean "not set".
type FilterParams struct {
	Brand     string
	Category  string
	Model     string
	IsDeleted string
	MaxPrice  string
	MinStock  string
	Page      string
	Size      string
	Sort      string
}

// Build parses p into a store filter and page request.
func (p FilterParams) Build() (store.ProductFilter, store.PageRequest, error) {
	var (
		filter store.ProductFilter
		page   store.PageRequest
	)
	filter.Brand = strings.TrimSpace(p.Brand)
	filter.Category = strings.TrimSpace(p.Category)
	filter.Model = strings.TrimSpace(p.Model)

	if v := strings.TrimSpace(p.IsDeleted); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, page, invalid("isDeleted", "must be true or false")
		}
		filter.IsDeleted = &b
	}
	if v := strings.TrimSpace(p.MaxPrice); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, page, invalid("maxPrice", "must be a number")
		}
		if d.IsNegative() {
			return filter, page, invalid("maxPrice", "must not be negative")
		}
		filter.MaxPrice = &d
	}
	if v := strings.TrimSpace(p.MinStock); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, page, invalid("minStock", "must be an integer")
		}
		if n < 0 {
			return filter, page, invalid("minStock", "must not be negative")
		}
		filter.MinStock = &n
	}

	if v := strings.TrimSpace(p.Page); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, page, invalid("page", "must be a non-negative integer")
		}
		if n > store.MaxPage {
			return filter, page, invalid("page", "must be at most "+strconv.Itoa(store.MaxPage))
		}
		page.Page = n
	}
	if v := strings.TrimSpace(p.Size); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, page, invalid("size", "must be a positive integer")
		}
		page.Size = n
	}
	if v := strings.TrimSpace(p.Sort); v != "" {
		field, desc := store.ParseSort(v)
		switch field {
		case store.SortID, store.SortBrand, store.SortModel, store.SortPrice, store.SortStock, store.SortCreatedAt:
		default:
			return filter, page, invalid("sort", "unknown field "+strconv.Quote(field))
		}
		page.SortBy, page.Desc = field, desc
	}
	return filter, page.Normalize(), nil
}
