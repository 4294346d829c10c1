package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/kolabz/kolabz-backend/internal/plans"
	"github.com/kolabz/kolabz-backend/internal/subscriptions"
	"github.com/kolabz/kolabz-backend/pkg/config"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
	"github.com/kolabz/kolabz-backend/pkg/logger"
)

// ServiceParams groups dependencies for the checkout orchestrator.
type ServiceParams struct {
	Plans   plans.Repository
	Subs    subscriptions.Repository
	Stripe  StripeCheckoutClient
	Billing config.BillingConfig
	Logg    *logger.Logger
}

// Service drives paid plan changes: in-place swaps for live subscriptions,
// fresh incomplete subscriptions (with a payment client secret) otherwise.
type Service struct {
	plans   plans.Repository
	subs    subscriptions.Repository
	stripe  StripeCheckoutClient
	billing config.BillingConfig
	logg    *logger.Logger
}

// NewService builds a checkout service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Plans == nil {
		return nil, errors.New("plans repo is required")
	}
	if params.Subs == nil {
		return nil, errors.New("subscriptions repo is required")
	}
	if params.Stripe == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Service{
		plans:   params.Plans,
		subs:    params.Subs,
		stripe:  params.Stripe,
		billing: params.Billing,
		logg:    params.Logg,
	}, nil
}

// ChangePlanParams identifies the user and the plan they are moving to.
type ChangePlanParams struct {
	UserID uuid.UUID
	Email  string
	PlanID string
	Annual bool
}

// ChangePlanResult reports the resulting subscription. ClientSecret is only
// set when a new incomplete subscription needs payment confirmation client-side.
type ChangePlanResult struct {
	SubscriptionID       uuid.UUID                `json:"subscription_id"`
	StripeSubscriptionID string                   `json:"stripe_subscription_id"`
	Status               enums.SubscriptionStatus `json:"status"`
	ClientSecret         string                   `json:"client_secret,omitempty"`
}

// ChangePlan moves the user onto the requested plan. An existing live
// subscription is updated in place with prorations; without one, a new
// subscription is created in default_incomplete mode.
func (s *Service) ChangePlan(ctx context.Context, params ChangePlanParams) (*ChangePlanResult, error) {
	priceID, plan, err := s.resolvePrice(ctx, params.PlanID, params.Annual)
	if err != nil {
		return nil, err
	}

	existing, err := s.subs.FindByUser(ctx, params.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}

	if existing != nil && existing.StripeSubscriptionID != "" && !existing.Status.IsTerminal() {
		return s.swapPlan(ctx, existing, plan, priceID, params.Annual)
	}

	return s.createSubscription(ctx, params, plan, priceID, existing)
}

func (s *Service) swapPlan(ctx context.Context, sub *models.Subscription, plan *models.SubscriptionPlan, priceID string, annual bool) (*ChangePlanResult, error) {
	remote, err := s.stripe.SubscriptionGet(ctx, sub.StripeSubscriptionID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	if remote.Items == nil || len(remote.Items.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription has no items")
	}

	updated, err := s.stripe.SubscriptionUpdate(ctx, sub.StripeSubscriptionID, &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(remote.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stripe subscription")
	}

	sub.PlanID = plan.ID
	sub.IsAnnual = annual
	if err := subscriptions.UpdateFromStripe(sub, updated); err != nil {
		return nil, err
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithPlanID(ctx, plan.ID), "subscription plan swapped")
	}
	return &ChangePlanResult{
		SubscriptionID:       sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		Status:               sub.Status,
	}, nil
}

func (s *Service) createSubscription(ctx context.Context, params ChangePlanParams, plan *models.SubscriptionPlan, priceID string, prior *models.Subscription) (*ChangePlanResult, error) {
	customerID := ""
	if prior != nil {
		customerID = prior.StripeCustomerID
	}
	if customerID == "" {
		cust, err := s.stripe.CustomerCreate(ctx, &stripe.CustomerParams{
			Email:    stripe.String(params.Email),
			Metadata: map[string]string{"user_id": params.UserID.String()},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
		}
		customerID = cust.ID
	}

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
		Metadata: map[string]string{
			"user_id": params.UserID.String(),
			"plan_id": plan.ID,
		},
	}
	if plan.TrialDays > 0 {
		subParams.TrialPeriodDays = stripe.Int64(int64(plan.TrialDays))
	}
	// confirmation secret replaced the invoice payment intent in the basil API
	subParams.Expand = []*string{stripe.String("latest_invoice.confirmation_secret")}

	created, err := s.stripe.SubscriptionCreate(ctx, subParams)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe subscription")
	}

	sub := &models.Subscription{
		ID:               uuid.New(),
		UserID:           params.UserID,
		StripeCustomerID: customerID,
		PlanID:           plan.ID,
		IsAnnual:         params.Annual,
	}
	if err := subscriptions.UpdateFromStripe(sub, created); err != nil {
		return nil, err
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}

	result := &ChangePlanResult{
		SubscriptionID:       sub.ID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		Status:               sub.Status,
	}
	if created.LatestInvoice != nil && created.LatestInvoice.ConfirmationSecret != nil {
		result.ClientSecret = created.LatestInvoice.ConfirmationSecret.ClientSecret
	}
	if result.ClientSecret == "" && plan.TrialDays == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no payment client secret")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithPlanID(ctx, plan.ID), "subscription created")
	}
	return result, nil
}

// CheckoutSessionParams configure a hosted checkout redirect.
type CheckoutSessionParams struct {
	UserID uuid.UUID
	Email  string
	PlanID string
	Annual bool
}

// CreateCheckoutSession builds a hosted Stripe Checkout session for the plan.
func (s *Service) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (string, error) {
	priceID, plan, err := s.resolvePrice(ctx, params.PlanID, params.Annual)
	if err != nil {
		return "", err
	}
	if s.billing.CheckoutSuccessURL == "" || s.billing.CheckoutCancelURL == "" {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "checkout redirect urls not configured")
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(s.billing.CheckoutSuccessURL),
		CancelURL:  stripe.String(s.billing.CheckoutCancelURL),
		Metadata: map[string]string{
			"user_id": params.UserID.String(),
			"plan_id": plan.ID,
		},
	}

	existing, err := s.subs.FindByUser(ctx, params.UserID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if existing != nil && existing.StripeCustomerID != "" {
		sessionParams.Customer = stripe.String(existing.StripeCustomerID)
	} else if params.Email != "" {
		sessionParams.CustomerEmail = stripe.String(params.Email)
	}

	session, err := s.stripe.CheckoutSessionCreate(ctx, sessionParams)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return session.URL, nil
}

// CreatePortalSession opens the Stripe billing portal for the user's customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID uuid.UUID) (string, error) {
	existing, err := s.subs.FindByUser(ctx, userID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if existing == nil || existing.StripeCustomerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "no billing profile for user")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(existing.StripeCustomerID),
	}
	if s.billing.PortalReturnURL != "" {
		params.ReturnURL = stripe.String(s.billing.PortalReturnURL)
	}

	session, err := s.stripe.PortalSessionCreate(ctx, params)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	return session.URL, nil
}

func (s *Service) resolvePrice(ctx context.Context, planID string, annual bool) (string, *models.SubscriptionPlan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return "", nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if !plan.Active {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is not available")
	}

	priceID := plan.StripePriceIDFor(enums.IntervalFromAnnualFlag(annual))
	if priceID == "" {
		return "", nil, pkgerrors.New(pkgerrors.CodeValidation, "price not found for plan, run plan sync first")
	}
	return priceID, plan, nil
}
