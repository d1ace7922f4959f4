package product

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-store/internal/infrastructure/store"
)

func TestFilterParams_Build(t *testing.T) {
	filter, page, err := FilterParams{
		Brand:     " apple ",
		Category:  "phones",
		Model:     "pro",
		IsDeleted: "false",
		MaxPrice:  "999.99",
		MinStock:  "1",
		Page:      "2",
		Size:      "20",
		Sort:      "price,desc",
	}.Build()

	require.NoError(t, err)
	assert.Equal(t, "apple", filter.Brand)
	assert.Equal(t, "phones", filter.Category)
	assert.Equal(t, "pro", filter.Model)
	require.NotNil(t, filter.IsDeleted)
	assert.False(t, *filter.IsDeleted)
	require.NotNil(t, filter.MaxPrice)
	assert.True(t, decimal.RequireFromString("999.99").Equal(*filter.MaxPrice))
	require.NotNil(t, filter.MinStock)
	assert.Equal(t, 1, *filter.MinStock)
	assert.Equal(t, store.PageRequest{Page: 2, Size: 20, SortBy: store.SortPrice, Desc: true}, page)
}

func TestFilterParams_Build_Defaults(t *testing.T) {
	filter, page, err := FilterParams{}.Build()

	require.NoError(t, err)
	assert.Equal(t, store.ProductFilter{}, filter)
	assert.Equal(t, store.PageRequest{Size: store.DefaultPageSize, SortBy: store.SortID}, page)
}

func TestFilterParams_Build_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		params FilterParams
		field  string
	}{
		{"isDeleted", FilterParams{IsDeleted: "maybe"}, "isDeleted"},
		{"price not a number", FilterParams{MaxPrice: "cheap"}, "maxPrice"},
		{"negative price", FilterParams{MaxPrice: "-1"}, "maxPrice"},
		{"stock not a number", FilterParams{MinStock: "1.5"}, "minStock"},
		{"negative stock", FilterParams{MinStock: "-2"}, "minStock"},
		{"negative page", FilterParams{Page: "-1"}, "page"},
		{"page past the last offset", FilterParams{Page: "922337203685477581", Size: "10"}, "page"},
		{"page overflows int", FilterParams{Page: "99999999999999999999"}, "page"},
		{"zero size", FilterParams{Size: "0"}, "size"},
		{"unknown sort", FilterParams{Sort: "password,asc"}, "sort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.params.Build()

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
