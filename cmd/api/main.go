package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vendorhub/vendorhub-backend/api/routes"
	"github.com/vendorhub/vendorhub-backend/internal/cancellation"
	cartsvc "github.com/vendorhub/vendorhub-backend/internal/cart"
	checkoutsvc "github.com/vendorhub/vendorhub-backend/internal/checkout"
	"github.com/vendorhub/vendorhub-backend/internal/inventory"
	"github.com/vendorhub/vendorhub-backend/internal/notifications"
	internalorders "github.com/vendorhub/vendorhub-backend/internal/orders"
	"github.com/vendorhub/vendorhub-backend/internal/products"
	"github.com/vendorhub/vendorhub-backend/internal/reservation"
	"github.com/vendorhub/vendorhub-backend/pkg/config"
	"github.com/vendorhub/vendorhub-backend/pkg/db"
	"github.com/vendorhub/vendorhub-backend/pkg/logger"
	"github.com/vendorhub/vendorhub-backend/pkg/metrics"
	"github.com/vendorhub/vendorhub-backend/pkg/migrate"
	"github.com/vendorhub/vendorhub-backend/pkg/outbox"
	"github.com/vendorhub/vendorhub-backend/pkg/redis"
	"github.com/vendorhub/vendorhub-backend/pkg/square"
)

const shutdownGrace = 15 * time.Second

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

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	productsSvc, err := products.NewService(products.NewRepository(dbClient.DB()))
	if err != nil {
		fatal(logg, "failed to create products service", err)
	}

	inventorySvc, err := inventory.NewService(inventory.NewRepository(dbClient.DB()), logg)
	if err != nil {
		fatal(logg, "failed to create inventory service", err)
	}

	reservationSvc, err := reservation.NewService(dbClient, reservation.NewRepository(dbClient.DB()), inventorySvc, outboxSvc, cfg.Reservation, logg)
	if err != nil {
		fatal(logg, "failed to create reservation service", err)
	}

	cartStore, err := cartsvc.NewStore(redisClient, cfg.Cart.TTL, cfg.Cart.LockTTL, cfg.Cart.LockRetry)
	if err != nil {
		fatal(logg, "failed to create cart store", err)
	}
	cartService, err := cartsvc.NewService(cartStore, productsSvc, inventorySvc, cfg.Cart)
	if err != nil {
		fatal(logg, "failed to create cart service", err)
	}

	ordersRepo := internalorders.NewRepository(dbClient.DB())
	ordersSvc, err := internalorders.NewService(dbClient, ordersRepo, outboxSvc, logg)
	if err != nil {
		fatal(logg, "failed to create orders service", err)
	}

	checkoutService, err := checkoutsvc.NewService(
		dbClient,
		cartService,
		productsSvc,
		inventorySvc,
		reservationSvc,
		ordersRepo,
		squareClient,
		outboxSvc,
		redisClient,
		checkoutMetrics,
		cfg.Checkout,
		logg,
	)
	if err != nil {
		fatal(logg, "failed to create checkout service", err)
	}

	cancellationSvc, err := cancellation.NewService(dbClient, ordersRepo, inventorySvc, squareClient, outboxSvc, checkoutMetrics, logg)
	if err != nil {
		fatal(logg, "failed to create cancellation service", err)
	}

	notifier := notifications.New(notifications.NewLogSender(logg), logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Redis:        redisClient,
			Cart:         cartService,
			Reservations: reservationSvc,
			Checkout:     checkoutService,
			Orders:       ordersSvc,
			OrdersRepo:   ordersRepo,
			Cancellation: cancellationSvc,
			Notifier:     notifier,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}

func fatal(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
