package plansync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/kolabz/kolabz-backend/internal/plans"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
	"github.com/kolabz/kolabz-backend/pkg/logger"
)

// ServiceParams groups dependencies for the plan sync service.
type ServiceParams struct {
	Repo   plans.Repository
	Stripe StripeCatalogClient
	Logg   *logger.Logger
}

// Service pushes the local plan catalog into Stripe. The local database is the
// source of truth: each sync upserts products and rotates prices so Stripe
// converges on what the catalog says.
type Service struct {
	repo   plans.Repository
	stripe StripeCatalogClient
	logg   *logger.Logger
}

// Result summarizes a completed sync run.
type Result struct {
	PlansSynced       int `json:"plans_synced"`
	PricesCreated     int `json:"prices_created"`
	PricesDeactivated int `json:"prices_deactivated"`
}

// NewService builds a plan sync service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Stripe == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Service{repo: params.Repo, stripe: params.Stripe, logg: params.Logg}, nil
}

// Sync pushes a single plan into Stripe: ensure its product exists and is
// current, then rotate the per-interval prices (deactivate the old price,
// mint a new one). Other plans in the catalog keep their price ids.
func (s *Service) Sync(ctx context.Context, planID string) (*Result, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	plan, err := s.repo.FindByID(ctx, planID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	result := &Result{}
	var softErrs error
	if err := s.syncPlan(ctx, plan, result, &softErrs); err != nil {
		return result, err
	}
	s.warnSoftErrs(ctx, softErrs)
	return result, nil
}

// SyncAll walks the whole catalog. A failed create or product write aborts
// the run and leaves already-synced plans as they are.
func (s *Service) SyncAll(ctx context.Context) (*Result, error) {
	allPlans, err := s.repo.List(ctx, plans.ListQuery{})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}

	result := &Result{}
	var softErrs error
	for i := range allPlans {
		if err := s.syncPlan(ctx, &allPlans[i], result, &softErrs); err != nil {
			return result, err
		}
	}
	s.warnSoftErrs(ctx, softErrs)
	return result, nil
}

func (s *Service) syncPlan(ctx context.Context, plan *models.SubscriptionPlan, result *Result, softErrs *error) error {
	ctx = s.planContext(ctx, plan.ID)

	if err := s.syncProduct(ctx, plan); err != nil {
		return err
	}
	for _, interval := range []enums.BillingInterval{enums.BillingIntervalMonthly, enums.BillingIntervalAnnual} {
		if err := s.rotatePrice(ctx, plan, interval, result, softErrs); err != nil {
			return err
		}
	}

	if err := s.repo.Update(ctx, plan); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist synced plan")
	}
	result.PlansSynced++
	if s.logg != nil {
		s.logg.Info(ctx, "plan synced to stripe")
	}
	return nil
}

func (s *Service) warnSoftErrs(ctx context.Context, softErrs error) {
	if softErrs != nil && s.logg != nil {
		s.logg.Warn(ctx, fmt.Sprintf("plan sync finished with skipped deactivations: %v", softErrs))
	}
}

func (s *Service) syncProduct(ctx context.Context, plan *models.SubscriptionPlan) error {
	params := &stripe.ProductParams{
		Name:        stripe.String(plan.Name),
		Description: stripe.String(plan.Description),
		Active:      stripe.Bool(plan.Active),
		Metadata:    map[string]string{"plan_id": plan.ID},
	}

	if plan.StripeProductID == "" {
		prod, err := s.stripe.ProductCreate(ctx, params)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe product")
		}
		plan.StripeProductID = prod.ID
		return nil
	}

	if _, err := s.stripe.ProductUpdate(ctx, plan.StripeProductID, params); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stripe product")
	}
	return nil
}

// rotatePrice deactivates the previous price for the interval and creates a
// fresh one. Stripe prices are immutable, so amount changes always mint a new
// price id.
func (s *Service) rotatePrice(ctx context.Context, plan *models.SubscriptionPlan, interval enums.BillingInterval, result *Result, softErrs *error) error {
	oldPriceID := plan.StripePriceIDFor(interval)
	if oldPriceID != "" {
		if _, err := s.stripe.PriceDeactivate(ctx, oldPriceID); err != nil {
			// best-effort: a stale active price in Stripe is harmless,
			// the catalog only ever points at the new one
			*softErrs = multierr.Append(*softErrs, fmt.Errorf("deactivate price %s: %w", oldPriceID, err))
		} else {
			result.PricesDeactivated++
		}
	}

	created, err := s.stripe.PriceCreate(ctx, &stripe.PriceParams{
		Product:    stripe.String(plan.StripeProductID),
		Currency:   stripe.String(string(plan.Currency)),
		UnitAmount: stripe.Int64(plan.PriceFor(interval)),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(stripeRecurringInterval(interval)),
		},
		Metadata: map[string]string{
			"plan_id":  plan.ID,
			"interval": interval.String(),
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe price")
	}

	switch interval {
	case enums.BillingIntervalAnnual:
		plan.StripePriceIDAnnual = created.ID
	default:
		plan.StripePriceIDMonthly = created.ID
	}
	result.PricesCreated++
	return nil
}

func (s *Service) planContext(ctx context.Context, planID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithPlanID(ctx, planID)
}

func stripeRecurringInterval(interval enums.BillingInterval) string {
	if interval == enums.BillingIntervalAnnual {
		return string(stripe.PriceRecurringIntervalYear)
	}
	return string(stripe.PriceRecurringIntervalMonth)
}
