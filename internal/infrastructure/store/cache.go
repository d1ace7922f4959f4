package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/ec-store/internal/model"
)

const (
	productKeyPrefix = "product:"
	cacheLoadTimeout = 5 * time.Second
)

// CachedCatalog puts a Redis cache-aside layer in front of Get. Any mutation of a
// product evicts its key; category changes evict every product key since products
// embed their category. Redis failures are logged and the call falls through to
// the underlying catalog.
type CachedCatalog struct {
	Catalog
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewCachedCatalog wraps next with a cache on client.
func NewCachedCatalog(next Catalog, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCatalog{
		Catalog: next,
		client:  client,
		ttl:     ttl,
		logger:  logger.Named("cache"),
	}
}

func productKey(id int64) string {
	return productKeyPrefix + strconv.FormatInt(id, 10)
}

func (c *CachedCatalog) Get(ctx context.Context, id int64) (*model.Product, error) {
	key := productKey(id)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p model.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}

	// Waiters share the leader's load, so it must outlive the leader's cancellation.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheLoadTimeout)
	defer cancel()
	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.Catalog.Get(loadCtx, id)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(p); err == nil {
			if err := c.client.Set(loadCtx, key, data, c.ttl).Err(); err != nil {
				c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*model.Product)
	return &p, nil
}

func (c *CachedCatalog) Upsert(ctx context.Context, p *model.Product) (*model.Product, error) {
	saved, err := c.Catalog.Upsert(ctx, p)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, saved.ID)
	return saved, nil
}

func (c *CachedCatalog) UpdateProduct(ctx context.Context, id int64, mutate func(*model.Product) error) (*model.Product, error) {
	saved, err := c.Catalog.UpdateProduct(ctx, id, mutate)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, id)
	return saved, nil
}

func (c *CachedCatalog) SoftDelete(ctx context.Context, id int64) error {
	if err := c.Catalog.SoftDelete(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *CachedCatalog) Reserve(ctx context.Context, reqs []StockRequest) error {
	if err := c.Catalog.Reserve(ctx, reqs); err != nil {
		return err
	}
	c.evict(ctx, requestIDs(reqs)...)
	return nil
}

func (c *CachedCatalog) Release(ctx context.Context, reqs []StockRequest) error {
	err := c.Catalog.Release(ctx, reqs)
	c.evict(ctx, requestIDs(reqs)...)
	return err
}

func (c *CachedCatalog) UpsertCategory(ctx context.Context, cat *model.Category) (*model.Category, error) {
	saved, err := c.Catalog.UpsertCategory(ctx, cat)
	if err != nil {
		return nil, err
	}
	c.evictAll(ctx)
	return saved, nil
}

func (c *CachedCatalog) RenameCategory(ctx context.Context, id, name string) (*model.Category, error) {
	saved, err := c.Catalog.RenameCategory(ctx, id, name)
	if err != nil {
		return nil, err
	}
	c.evictAll(ctx)
	return saved, nil
}

func (c *CachedCatalog) SoftDeleteCategory(ctx context.Context, id string) error {
	if err := c.Catalog.SoftDeleteCategory(ctx, id); err != nil {
		return err
	}
	c.evictAll(ctx)
	return nil
}

func requestIDs(reqs []StockRequest) []int64 {
	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ProductID
	}
	return ids
}

func (c *CachedCatalog) evict(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache evict failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *CachedCatalog) evictAll(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, productKeyPrefix+"*", 100).Result()
		if err != nil {
			c.logger.Warn("cache scan failed", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("cache evict failed", zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
