package order

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/infrastructure/store/mocks"
	"github.com/example/ec-store/internal/model"
)

type fixture struct {
	service *Service
	catalog *mocks.MockCatalog
	orders  *mocks.MockOrderStore
	users   *store.MemoryUsers
	product *model.Product
	userID  string
}

// newFixture seeds one product priced 10.00 with 5 in stock.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	catalog := mocks.NewMockCatalog()
	c, err := catalog.UpsertCategory(ctx, &model.Category{Name: "Phones"})
	require.NoError(t, err)
	p, err := catalog.Upsert(ctx, &model.Product{
		Brand:    "Acme",
		Model:    "One",
		Price:    decimal.RequireFromString("10.00"),
		Stock:    5,
		Category: *c,
	})
	require.NoError(t, err)

	users := store.NewMemoryUsers()
	require.NoError(t, users.CreateUser(ctx, &model.User{ID: "user-1", Email: "a@example.com", Role: model.RoleUser, IsActive: true}))

	orders := mocks.NewMockOrderStore()
	return fixture{
		service: NewService(catalog, orders, users, nil),
		catalog: catalog,
		orders:  orders,
		users:   users,
		product: p,
		userID:  "user-1",
	}
}

func (f fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f fixture) order(lines ...LineInput) PlaceOrder {
	return PlaceOrder{UserID: f.userID, Lines: lines}
}

func line(id int64, qty int, price string) LineInput {
	return LineInput{ProductID: id, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

// ============================================
// ValidateAndAccept Tests
// ============================================

func TestService_ValidateAndAccept_Accepted(t *testing.T) {
	f := newFixture(t)

	o, err := f.service.ValidateAndAccept(context.Background(), f.order(line(f.product.ID, 3, "10.00")))

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, model.OrderAccepted, o.Status)
	assert.Equal(t, f.userID, o.UserID)
	assert.True(t, decimal.RequireFromString("30").Equal(o.Total))
	assert.Equal(t, 3, o.TotalItems())
	assert.Equal(t, 2, f.stock(t, f.product.ID))

	stored, err := f.service.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)
}

func TestService_ValidateAndAccept_PriceEqualityIgnoresScale(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ValidateAndAccept(context.Background(), f.order(line(f.product.ID, 1, "10")))

	require.NoError(t, err)
}

func TestService_ValidateAndAccept_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		lines   func(f fixture) []LineInput
		wantErr error
		line    int
	}{
		{
			name:    "price mismatch",
			lines:   func(f fixture) []LineInput { return []LineInput{line(f.product.ID, 3, "9.99")} },
			wantErr: ErrPriceMismatch,
		},
		{
			name:    "insufficient stock",
			lines:   func(f fixture) []LineInput { return []LineInput{line(f.product.ID, 6, "10.00")} },
			wantErr: ErrInsufficientStock,
		},
		{
			name:    "unknown product",
			lines:   func(f fixture) []LineInput { return []LineInput{line(f.product.ID, 1, "10.00"), line(777, 1, "1.00")} },
			wantErr: ErrProductNotFound,
			line:    1,
		},
		{
			name: "repeated product exceeds stock",
			lines: func(f fixture) []LineInput {
				return []LineInput{line(f.product.ID, 3, "10.00"), line(f.product.ID, 3, "10.00")}
			},
			wantErr: ErrInsufficientStock,
			line:    1,
		},
		{
			name: "first failing line wins",
			lines: func(f fixture) []LineInput {
				return []LineInput{line(f.product.ID, 6, "9.99"), line(777, 1, "1.00")}
			},
			wantErr: ErrPriceMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			o, err := f.service.ValidateAndAccept(context.Background(), f.order(tt.lines(f)...))

			assert.Nil(t, o)
			assert.ErrorIs(t, err, tt.wantErr)
			var rej *RejectionError
			require.True(t, errors.As(err, &rej))
			assert.Equal(t, tt.line, rej.Line)
			assert.Equal(t, 5, f.stock(t, f.product.ID))
			assert.Zero(t, f.orders.SavedCount())
			assert.Empty(t, f.catalog.ReserveCalls)
		})
	}
}

func TestService_ValidateAndAccept_DeletedProduct(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.catalog.SoftDelete(context.Background(), f.product.ID))

	_, err := f.service.ValidateAndAccept(context.Background(), f.order(line(f.product.ID, 1, "10.00")))

	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestService_ValidateAndAccept_InvalidShape(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.ValidateAndAccept(ctx, f.order())
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = f.service.ValidateAndAccept(ctx, f.order(line(f.product.ID, 0, "10.00")))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.service.ValidateAndAccept(ctx, f.order(line(f.product.ID, 1, "-10.00")))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestService_ValidateAndAccept_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ValidateAndAccept(context.Background(), PlaceOrder{
		UserID: "ghost",
		Lines:  []LineInput{line(f.product.ID, 1, "10.00")},
	})

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 5, f.stock(t, f.product.ID))
}

func TestService_ValidateAndAccept_ReserveRaceRejected(t *testing.T) {
	f := newFixture(t)
	f.catalog.ReserveErr = &store.StockError{ProductID: f.product.ID, Err: store.ErrInsufficientStock}

	_, err := f.service.ValidateAndAccept(context.Background(), f.order(line(f.product.ID, 1, "10.00")))

	assert.ErrorIs(t, err, ErrInsufficientStock)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, f.product.ID, rej.ProductID)
	assert.Zero(t, f.orders.SavedCount())
}

func TestService_ValidateAndAccept_SaveFailureReleasesStock(t *testing.T) {
	f := newFixture(t)
	f.orders.SaveErr = errors.New("mongo unavailable")

	_, err := f.service.ValidateAndAccept(context.Background(), f.order(line(f.product.ID, 3, "10.00")))

	assert.Error(t, err)
	assert.Len(t, f.catalog.ReleaseCalls, 1)
	assert.Equal(t, 5, f.stock(t, f.product.ID))
}

func TestService_ValidateAndAccept_ConcurrentNoOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		errs     []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.ValidateAndAccept(ctx, f.order(line(f.product.ID, 3, "10.00")))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrInsufficientStock)
	assert.Equal(t, 2, f.stock(t, f.product.ID))
}

// ============================================
// Delete / Get / List Tests
// ============================================

func TestService_Delete_DoesNotRestock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.service.ValidateAndAccept(ctx, f.order(line(f.product.ID, 3, "10.00")))
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, o.ID))

	assert.Equal(t, 2, f.stock(t, f.product.ID))
	_, err = f.service.Get(ctx, o.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, f.service.Delete(ctx, o.ID), ErrOrderNotFound)
}

func TestService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.CreateUser(ctx, &model.User{ID: "user-2", Email: "b@example.com"}))

	_, err := f.service.ValidateAndAccept(ctx, f.order(line(f.product.ID, 1, "10.00")))
	require.NoError(t, err)
	_, err = f.service.ValidateAndAccept(ctx, PlaceOrder{UserID: "user-2", Lines: []LineInput{line(f.product.ID, 1, "10.00")}})
	require.NoError(t, err)

	mine, err := f.service.List(ctx, f.userID, store.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), mine.Total)

	all, err := f.service.List(ctx, "", store.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
}
