package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/config"
	"github.com/example/ec-store/internal/infrastructure/blob"
	"github.com/example/ec-store/internal/infrastructure/store"
)

// backends holds the storage the services run on, plus what to close on exit.
type backends struct {
	catalog store.Catalog
	orders  store.OrderStore
	users   store.UserStore
	blobs   blob.Store
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	var db *sql.DB
	if cfg.StoreBackend == config.BackendPostgres || cfg.OrderBackend == config.BackendPostgres {
		db, err = store.ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := store.Migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL")
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		b.catalog = store.NewPostgresCatalog(db, logger)
		b.users = store.NewPostgresUsers(db)
	default:
		b.catalog = store.NewMemoryCatalog()
		b.users = store.NewMemoryUsers()
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		b.closers = append(b.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			// The cache falls through to the catalog while Redis is down.
			logger.Warn("redis unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		b.catalog = store.NewCachedCatalog(b.catalog, client, cfg.CacheTTL, logger)
		logger.Info("product cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CacheTTL))
	}

	switch cfg.OrderBackend {
	case config.BackendPostgres:
		b.orders = store.NewPostgresOrders(db)
	case config.BackendMongo:
		client, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		orders := store.NewMongoOrders(client.Database(cfg.MongoDB))
		if err := orders.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		b.orders = orders
		logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDB))
	default:
		b.orders = store.NewMemoryOrders()
	}

	switch cfg.BlobBackend {
	case config.BackendNATS:
		objects, err := blob.NewObjectStore(ctx, cfg.NATSURL, cfg.NATSBucket)
		if err != nil {
			return nil, fmt.Errorf("open object store: %w", err)
		}
		b.closers = append(b.closers, objects.Close)
		b.blobs = objects
	default:
		files, err := blob.NewFileSystem(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("open upload dir: %w", err)
		}
		b.blobs = files
	}

	logger.Info("storage ready",
		zap.String("catalog", cfg.StoreBackend),
		zap.String("orders", cfg.OrderBackend),
		zap.String("blobs", cfg.BlobBackend),
	)
	return b, nil
}
