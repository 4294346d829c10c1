package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/kolabz/kolabz-backend/api/routes"
	"github.com/kolabz/kolabz-backend/internal/checkout"
	"github.com/kolabz/kolabz-backend/internal/plans"
	"github.com/kolabz/kolabz-backend/internal/plansync"
	"github.com/kolabz/kolabz-backend/internal/settings"
	"github.com/kolabz/kolabz-backend/internal/subscriptions"
	stripewebhook "github.com/kolabz/kolabz-backend/internal/webhooks/stripe"
	"github.com/kolabz/kolabz-backend/pkg/config"
	"github.com/kolabz/kolabz-backend/pkg/db"
	"github.com/kolabz/kolabz-backend/pkg/logger"
	"github.com/kolabz/kolabz-backend/pkg/migrate"
	"github.com/kolabz/kolabz-backend/pkg/redis"
	"github.com/kolabz/kolabz-backend/pkg/stripe"
)

const webhookDedupTTL = 72 * time.Hour

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

	cfg.Service.Kind = "api"

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	planRepo := plans.NewRepository(dbClient.DB())
	subRepo := subscriptions.NewRepository(dbClient.DB())

	planService, err := plans.NewService(plans.ServiceParams{Repo: planRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	planSyncService, err := plansync.NewService(plansync.ServiceParams{
		Repo:   planRepo,
		Stripe: plansync.NewStripeClient(stripeClient),
		Logg:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan sync service", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:   subRepo,
		Stripe: subscriptions.NewStripeClient(stripeClient),
		Logg:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Plans:   planRepo,
		Subs:    subRepo,
		Stripe:  checkout.NewStripeClient(stripeClient),
		Billing: cfg.Billing,
		Logg:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		SettingsRepo: settings.NewRepository(dbClient.DB()),
		Logg:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookDedupTTL, "stripe_webhook")
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
		"env":          cfg.App.Env,
		"service_kind": cfg.Service.Kind,
		"addr":         addr,
		"stripe_env":   stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			planService,
			planSyncService,
			subscriptionService,
			checkoutService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
