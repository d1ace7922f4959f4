package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/example/ec-store/internal/model"
)

func sampleOrder() *model.Order {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &model.Order{
		ID:     "01HX0000000000000000000000",
		UserID: "u1",
		Lines: []model.OrderLine{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("999.00"), Subtotal: decimal.RequireFromString("1998.00")},
			{ProductID: 3, Quantity: 1, UnitPrice: decimal.RequireFromString("0.99"), Subtotal: decimal.RequireFromString("0.99")},
		},
		Total:     decimal.RequireFromString("1998.99"),
		Status:    model.OrderAccepted,
		OrderedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ============================================
// Document Conversion Tests
// ============================================

func TestOrderDoc_RoundTrip(t *testing.T) {
	in := sampleOrder()

	doc, err := newOrderDoc(in)
	require.NoError(t, err)
	assert.Equal(t, "1998.99", doc.Total.String())
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, "0.99", doc.Lines[1].UnitPrice.String())

	out, err := doc.order()
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Status, out.Status)
	assert.True(t, in.Total.Equal(out.Total))
	require.Len(t, out.Lines, 2)
	for i := range in.Lines {
		assert.Equal(t, in.Lines[i].ProductID, out.Lines[i].ProductID)
		assert.Equal(t, in.Lines[i].Quantity, out.Lines[i].Quantity)
		assert.True(t, in.Lines[i].UnitPrice.Equal(out.Lines[i].UnitPrice))
		assert.True(t, in.Lines[i].Subtotal.Equal(out.Lines[i].Subtotal))
	}
}

func TestOrderDoc_UndecodableAmountIsAnError(t *testing.T) {
	doc, err := newOrderDoc(sampleOrder())
	require.NoError(t, err)
	nan, err := primitive.ParseDecimal128("NaN")
	require.NoError(t, err)

	total := doc
	total.Total = nan
	_, err = total.order()
	assert.ErrorContains(t, err, "decode decimal")

	line := doc
	line.Lines = append([]orderLineDoc(nil), doc.Lines...)
	line.Lines[1].UnitPrice = nan
	_, err = line.order()
	assert.ErrorContains(t, err, "line 2")
}
