package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/ec-store/internal/api"
	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/config"
	"github.com/example/ec-store/internal/domain/category"
	"github.com/example/ec-store/internal/domain/order"
	"github.com/example/ec-store/internal/domain/product"
	"github.com/example/ec-store/internal/domain/user"
	"github.com/example/ec-store/internal/infrastructure/kafka"
	"github.com/example/ec-store/internal/logging"
	"github.com/example/ec-store/internal/notification"
)

const sessionSweepInterval = time.Hour

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger.Named("api")); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	hub := notification.NewHub(logger)
	defer hub.Close()

	var publisher notification.Publisher = hub
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = producer.Close() }()
		publisher = notification.Multi{hub, notification.NewKafkaPublisher(producer)}
		logger.Info("relaying notifications to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	userSvc := user.NewService(b.users, jwtService, logger)

	router := api.NewRouter(api.Deps{
		Products:       product.NewService(b.catalog, b.blobs, publisher, logger, product.WithCallTimeout(cfg.RequestTimeout)),
		Categories:     category.NewService(b.catalog, publisher, logger),
		Orders:         order.NewService(b.catalog, b.orders, b.users, logger),
		Users:          userSvc,
		JWT:            jwtService,
		Blobs:          b.blobs,
		Notifications:  notification.NewWebSocketHandler(hub, logger),
		RequestTimeout: cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if sweeper, ok := b.users.(expiredSessionSweeper); ok {
		g.Go(func() error {
			sweepSessions(gctx, sweeper, logger)
			return nil
		})
	}

	return g.Wait()
}

type expiredSessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// sweepSessions removes expired refresh sessions until ctx ends.
func sweepSessions(ctx context.Context, s expiredSessionSweeper, logger *zap.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Warn("sweep sessions failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}
