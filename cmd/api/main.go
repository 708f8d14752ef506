package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/tranvanhung2003/digital-world-v1-sub001/api/routes"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/cart"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/catalog"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/checkout"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/notifications"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/orders"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/payments"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/config"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/db"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/metrics"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/migrate"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/redis"
)

const webhookIdempotencyScope = "payment_webhook"

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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		closeAll(logg, dbClient)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		closeAll(logg, dbClient)
		os.Exit(1)
	}
	defer closeAll(logg, dbClient, redisClient)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orderMetrics := metrics.NewOrderFlowMetrics(registry)

	gormDB := dbClient.DB()
	productRepo := catalog.NewRepository(gormDB)
	stockAdjuster := catalog.NewStockAdjuster()
	cartRepo := cart.NewRepository(gormDB)
	orderRepo := orders.NewRepository(gormDB)
	notificationRepo := notifications.NewRepository(gormDB)

	dispatcher, err := notifications.NewDispatcher(notificationRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cartRepo, productRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(cartRepo, productRepo, orderRepo, dbClient, dispatcher, orderMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orderRepo, dbClient, stockAdjuster, dispatcher, orderMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(orderRepo, dbClient, stockAdjuster, dispatcher, orderMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notificationRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	webhookGuard, err := payments.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, webhookIdempotencyScope)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Registry:      registry,
			CartService:   cartService,
			Checkout:      checkoutService,
			Orders:        orderService,
			Payments:      paymentService,
			Notifications: notificationService,
			WebhookGuard:  webhookGuard,
		}),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutdown signal received, draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during server shutdown", err)
		}
	}
}

func closeAll(logg *logger.Logger, closers ...io.Closer) {
	var err error
	for _, c := range closers {
		if c == nil {
			continue
		}
		err = multierr.Append(err, c.Close())
	}
	if err != nil {
		logg.Error(context.Background(), "error closing resources", err)
	}
}
