package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/ec-store/internal/api/middleware"
	"github.com/example/ec-store/internal/config"
	"github.com/example/ec-store/internal/infrastructure/kafka"
	"github.com/example/ec-store/internal/logging"
	"github.com/example/ec-store/internal/notification"
)

// Every notifier instance gets every envelope, so each needs its own group.
const consumerGroupPrefix = "ws-notifier-"

var errKafkaRequired = errors.New("KAFKA_BROKERS is required for the notifier")

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger.Named("notifier")); err != nil {
		logger.Fatal("notifier stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if !cfg.KafkaEnabled() {
		return errKafkaRequired
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := notification.NewHub(logger)
	defer hub.Close()

	group := consumerGroupPrefix + instanceName()
	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, group, logger)
	defer func() { _ = consumer.Close() }()
	relay := notification.NewRelay(hub, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Method(http.MethodGet, "/ws/notifications", notification.NewWebSocketHandler(hub, logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.NotifierAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("consuming envelopes",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
			zap.String("group", group),
		)
		if err := consumer.Consume(gctx, relay.HandleMessage); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("server started", zap.String("addr", cfg.NotifierAddr))
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

	return g.Wait()
}

// instanceName identifies this process in its consumer group name.
func instanceName() string {
	if name := os.Getenv("NOTIFIER_INSTANCE"); name != "" {
		return name
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
