package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kolabz/kolabz-backend/api/controllers"
	billingcontrollers "github.com/kolabz/kolabz-backend/api/controllers/billing"
	webhookcontrollers "github.com/kolabz/kolabz-backend/api/controllers/webhooks"
	"github.com/kolabz/kolabz-backend/api/middleware"
	stripewebhook "github.com/kolabz/kolabz-backend/internal/webhooks/stripe"
	"github.com/kolabz/kolabz-backend/pkg/config"
	"github.com/kolabz/kolabz-backend/pkg/logger"
	"github.com/kolabz/kolabz-backend/pkg/redis"
	"github.com/kolabz/kolabz-backend/pkg/stripe"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP pinger,
	redisClient *redis.Client,
	planService billingcontrollers.PlanService,
	planSyncService billingcontrollers.PlanSyncService,
	subscriptionService billingcontrollers.SubscriptionService,
	checkoutService billingcontrollers.CheckoutService,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	// public pricing catalog, no auth
	r.Get("/api/v1/plans", billingcontrollers.PublicPlansList(planService, logg))

	r.Route("/api/v1/billing", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/subscription", billingcontrollers.SubscriptionDetail(subscriptionService, logg))
		r.Post("/change-plan", billingcontrollers.ChangePlan(checkoutService, logg))
		r.Post("/cancel", billingcontrollers.CancelSubscription(subscriptionService, logg))
		r.Post("/checkout-session", billingcontrollers.CreateCheckoutSession(checkoutService, logg))
		r.Post("/portal-session", billingcontrollers.CreatePortalSession(checkoutService, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", billingcontrollers.AdminPlansList(planService, logg))
			r.Post("/", billingcontrollers.AdminPlanUpsert(planService, logg))
			r.Post("/sync", billingcontrollers.AdminPlansSync(planSyncService, logg))
			r.Put("/{planId}", billingcontrollers.AdminPlanUpdate(planService, logg))
			r.Post("/{planId}/sync", billingcontrollers.AdminPlanSync(planSyncService, logg))
			r.Post("/{planId}/toggle", billingcontrollers.AdminPlanToggle(planService, logg))
			r.Delete("/{planId}", billingcontrollers.AdminPlanDelete(planService, logg))
		})
	})

	return r
}
