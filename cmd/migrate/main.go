package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"

	"github.com/example/ec-store/internal/config"
	"github.com/example/ec-store/internal/domain/user"
	"github.com/example/ec-store/internal/infrastructure/blob"
	"github.com/example/ec-store/internal/infrastructure/store"
	"github.com/example/ec-store/internal/logging"
)

var resetUploads = flag.Bool("reset-uploads", false, "delete every stored product image before exiting")

func main() {
	flag.Parse()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("migrate")

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("migrations completed")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("schema applied")

	if cfg.OrderBackend == config.BackendMongo {
		client, err := store.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := store.NewMongoOrders(client.Database(cfg.MongoDB)).EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		logger.Info("mongo indexes ensured", zap.String("database", cfg.MongoDB))
	}

	if cfg.AdminEmail != "" {
		users := user.NewService(store.NewPostgresUsers(db), nil, logger)
		admin, created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		logger.Info("admin account ready", zap.String("user_id", admin.ID), zap.Bool("created", created))
	}

	if *resetUploads {
		if err := clearUploads(ctx, cfg); err != nil {
			return err
		}
		logger.Info("uploads cleared", zap.String("backend", cfg.BlobBackend))
	}
	return nil
}

func clearUploads(ctx context.Context, cfg config.Config) error {
	var blobs blob.Store
	switch cfg.BlobBackend {
	case config.BackendNATS:
		objects, err := blob.NewObjectStore(ctx, cfg.NATSURL, cfg.NATSBucket)
		if err != nil {
			return fmt.Errorf("open object store: %w", err)
		}
		defer objects.Close()
		blobs = objects
	default:
		files, err := blob.NewFileSystem(cfg.UploadDir)
		if err != nil {
			return fmt.Errorf("open upload dir: %w", err)
		}
		blobs = files
	}
	if err := blobs.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear uploads: %w", err)
	}
	return nil
}
