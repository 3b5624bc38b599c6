package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/luiscamargo/farmfresh-backend/api/routes"
	cartsvc "github.com/luiscamargo/farmfresh-backend/internal/cart"
	"github.com/luiscamargo/farmfresh-backend/internal/catalog"
	checkoutsvc "github.com/luiscamargo/farmfresh-backend/internal/checkout"
	ordersvc "github.com/luiscamargo/farmfresh-backend/internal/orders"
	"github.com/luiscamargo/farmfresh-backend/internal/payments"
	"github.com/luiscamargo/farmfresh-backend/internal/users"
	"github.com/luiscamargo/farmfresh-backend/pkg/config"
	"github.com/luiscamargo/farmfresh-backend/pkg/db"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
	"github.com/luiscamargo/farmfresh-backend/pkg/migrate"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox"
	"github.com/luiscamargo/farmfresh-backend/pkg/redis"
	pkgstripe "github.com/luiscamargo/farmfresh-backend/pkg/stripe"
)

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

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	userRepo := users.NewRepository(gdb)
	catalogRepo := catalog.NewRepository(gdb)
	cartRepo := cartsvc.NewRepository(gdb)
	orderRepo := ordersvc.NewRepository(gdb)
	paymentRepo := payments.NewRepository(gdb)
	outboxService := outbox.NewService(outbox.NewRepository(gdb), logg)
	adjuster := catalog.NewAdjuster(catalogRepo)

	catalogService, err := catalog.NewService(catalogRepo, dbClient, userRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	cartService, err := cartsvc.NewService(cartRepo, dbClient, catalogRepo, cfg.Cart.TTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(userRepo, cartService, catalogRepo, cfg.Pricing)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	orderService, err := ordersvc.NewService(orderRepo, dbClient, cartRepo, catalogRepo, adjuster, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Provider:   payments.NewProviderClient(stripeClient),
		Meta:       stripeClient,
		OrdersRepo: orderRepo,
		EventsRepo: paymentRepo,
		Tx:         dbClient,
		Adjuster:   adjuster,
		Outbox:     outboxService,
		Timeout:    cfg.Stripe.RequestTimeout,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	webhookGuard, err := payments.NewGuard(redisClient, cfg.Stripe.EventTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
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
		Handler: routes.NewRouter(
			cfg,
			logg,
			gdb,
			redisClient,
			catalogService,
			cartService,
			checkoutService,
			orderService,
			paymentService,
			stripeClient,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
