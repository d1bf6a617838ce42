package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/vouchr/storefront-backend/api/routes"
	"github.com/vouchr/storefront-backend/internal/app"
	paymentwebhook "github.com/vouchr/storefront-backend/internal/webhooks/payment"
	"github.com/vouchr/storefront-backend/pkg/config"
	"github.com/vouchr/storefront-backend/pkg/db"
	"github.com/vouchr/storefront-backend/pkg/instance"
	"github.com/vouchr/storefront-backend/pkg/logger"
	"github.com/vouchr/storefront-backend/pkg/migrate"
	"github.com/vouchr/storefront-backend/pkg/redis"
)

const paymentWebhookScope = "payment-webhook"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	services, err := app.Build(cfg, logg, dbClient, registry)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	syncJob, err := services.CatalogSyncJob(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog sync job", err)
		os.Exit(1)
	}

	hooks, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Orders:  services.Orders,
		Engine:  services.Engine,
		Refunds: services.Refunds,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook service", err)
		os.Exit(1)
	}
	guard, err := paymentwebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.PaymentIdempotency, paymentWebhookScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			DB:           dbClient,
			Redis:        redisClient,
			Idempotency:  redisClient,
			RateLimiter:  redisClient,
			Gatherer:     registry,
			Orders:       services.Orders,
			Engine:       services.Engine,
			Refunds:      services.Refunds,
			Catalog:      services.Catalog,
			CatalogSync:  syncJob,
			Stock:        services.Stock,
			PaymentHooks: hooks,
			PaymentGuard: guard,
		}),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		logg.Info(ctx, "shutting down api server")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
