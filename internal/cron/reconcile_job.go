package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/kolabz/kolabz-backend/internal/subscriptions"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/logger"
	"github.com/kolabz/kolabz-backend/pkg/metrics"
)

const (
	defaultReconcileLimit    = 250
	defaultReconcileLookback = 7 * 24 * time.Hour
)

type subscriptionRefresher interface {
	RefreshFromStripe(ctx context.Context, sub *models.Subscription) (bool, error)
}

// SubscriptionReconcileJobParams configures the subscription refresh cron job.
type SubscriptionReconcileJobParams struct {
	Logger   *logger.Logger
	Repo     subscriptions.Repository
	Service  subscriptionRefresher
	Metrics  *metrics.CronJobMetrics
	Limit    int
	Lookback time.Duration
}

// NewSubscriptionReconcileJob builds the job that pulls authoritative
// subscription state from Stripe. Webhook handlers do not mutate local rows,
// so this loop is where status and period drift gets corrected.
func NewSubscriptionReconcileJob(params SubscriptionReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Service == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	return &subscriptionReconcileJob{
		logg:     params.Logger,
		repo:     params.Repo,
		service:  params.Service,
		metrics:  params.Metrics,
		limit:    limit,
		lookback: lookback,
	}, nil
}

type subscriptionReconcileJob struct {
	logg     *logger.Logger
	repo     subscriptions.Repository
	service  subscriptionRefresher
	metrics  *metrics.CronJobMetrics
	limit    int
	lookback time.Duration
}

func (j *subscriptionReconcileJob) Name() string { return "subscription-reconcile" }

func (j *subscriptionReconcileJob) Run(ctx context.Context) error {
	snapshot, err := j.repo.ListForReconciliation(ctx, j.limit, j.lookback)
	if err != nil {
		return fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}

	var errs error
	refreshed := 0
	for i := range snapshot {
		sub := &snapshot[i]
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"subscription_id":        sub.ID,
			"stripe_subscription_id": sub.StripeSubscriptionID,
		})
		if strings.TrimSpace(sub.StripeSubscriptionID) == "" {
			j.logg.Info(logCtx, "subscription missing stripe id; skipping")
			continue
		}
		changed, refreshErr := j.service.RefreshFromStripe(logCtx, sub)
		if refreshErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("refresh %s: %w", sub.StripeSubscriptionID, refreshErr))
			continue
		}
		if changed {
			refreshed++
			j.logg.Info(logCtx, "subscription refreshed from stripe")
		}
	}

	if j.metrics != nil {
		j.metrics.AddProcessed(j.Name(), len(snapshot))
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(snapshot),
		"refreshed":  refreshed,
	})
	j.logg.Info(reportCtx, "subscription reconcile loop complete")
	return errs
}
