package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/ec-store/internal/model"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedCatalog_FallsThroughWhenRedisDown(t *testing.T) {
	catalog, _, _ := seedCatalog(t)
	core, logs := observer.New(zapcore.WarnLevel)
	cached := NewCachedCatalog(catalog, unreachableRedis(t), time.Minute, zap.New(core))
	ctx := context.Background()

	p, err := cached.Get(ctx, 1)

	require.NoError(t, err)
	assert.Equal(t, "iPhone 15", p.Model)
	assert.NotZero(t, logs.FilterMessage("cache get failed").Len())
}

func TestCachedCatalog_MutationsSucceedWhenRedisDown(t *testing.T) {
	catalog, _, _ := seedCatalog(t)
	cached := NewCachedCatalog(catalog, unreachableRedis(t), time.Minute, nil)
	ctx := context.Background()

	p, err := cached.Get(ctx, 3)
	require.NoError(t, err)
	p.Stock = 7
	_, err = cached.Upsert(ctx, p)
	require.NoError(t, err)

	require.NoError(t, cached.Reserve(ctx, []StockRequest{{ProductID: 3, Quantity: 2, UnitPrice: decimal.RequireFromString("1299")}}))

	got, err := cached.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestCachedCatalog_NotFoundPassesThrough(t *testing.T) {
	catalog, _, _ := seedCatalog(t)
	cached := NewCachedCatalog(catalog, unreachableRedis(t), time.Minute, nil)

	_, err := cached.Get(context.Background(), 404)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedCatalog_UpdateAndRenameWhenRedisDown(t *testing.T) {
	catalog, phones, _ := seedCatalog(t)
	cached := NewCachedCatalog(catalog, unreachableRedis(t), time.Minute, nil)
	ctx := context.Background()

	updated, err := cached.UpdateProduct(ctx, 1, func(p *model.Product) error {
		p.Brand = "Apple Inc"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc", updated.Brand)

	renamed, err := cached.RenameCategory(ctx, phones.ID, "Smartphones")
	require.NoError(t, err)
	assert.Equal(t, "Smartphones", renamed.Name)
}

// ctxCheckingCatalog fails reads whose context has ended.
type ctxCheckingCatalog struct {
	Catalog
}

func (c ctxCheckingCatalog) Get(ctx context.Context, id int64) (*model.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Catalog.Get(ctx, id)
}

func TestCachedCatalog_LoadIgnoresCallerCancellation(t *testing.T) {
	catalog, _, _ := seedCatalog(t)
	cached := NewCachedCatalog(ctxCheckingCatalog{Catalog: catalog}, unreachableRedis(t), time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := cached.Get(ctx, 1)

	require.NoError(t, err)
	assert.Equal(t, "iPhone 15", p.Model)
}
