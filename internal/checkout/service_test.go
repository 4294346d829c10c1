package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kolabz/kolabz-backend/internal/plans"
	"github.com/kolabz/kolabz-backend/internal/subscriptions"
	"github.com/kolabz/kolabz-backend/pkg/config"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
)

type fakeCheckoutStripe struct {
	calls []string

	customer   *stripe.Customer
	getResp    *stripe.Subscription
	createResp *stripe.Subscription
	updateResp *stripe.Subscription

	createParams *stripe.SubscriptionParams
	updateParams *stripe.SubscriptionParams
	session      *stripe.CheckoutSession
	portal       *stripe.BillingPortalSession
	portalParams *stripe.BillingPortalSessionParams
}

func (f *fakeCheckoutStripe) CustomerCreate(_ context.Context, _ *stripe.CustomerParams) (*stripe.Customer, error) {
	f.calls = append(f.calls, "customer.create")
	return f.customer, nil
}

func (f *fakeCheckoutStripe) SubscriptionCreate(_ context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	f.calls = append(f.calls, "subscription.create")
	f.createParams = params
	return f.createResp, nil
}

func (f *fakeCheckoutStripe) SubscriptionGet(_ context.Context, id string, _ *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	f.calls = append(f.calls, "subscription.get")
	return f.getResp, nil
}

func (f *fakeCheckoutStripe) SubscriptionUpdate(_ context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	f.calls = append(f.calls, "subscription.update")
	f.updateParams = params
	return f.updateResp, nil
}

func (f *fakeCheckoutStripe) CheckoutSessionCreate(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.calls = append(f.calls, "checkout.session.create")
	return f.session, nil
}

func (f *fakeCheckoutStripe) PortalSessionCreate(_ context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	f.calls = append(f.calls, "portal.session.create")
	f.portalParams = params
	return f.portal, nil
}

func newCheckoutService(t *testing.T, client StripeCheckoutClient) (*Service, plans.Repository, subscriptions.Repository) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.SubscriptionPlan{}, &models.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	planRepo := plans.NewRepository(conn)
	subRepo := subscriptions.NewRepository(conn)
	svc, err := NewService(ServiceParams{
		Plans:  planRepo,
		Subs:   subRepo,
		Stripe: client,
		Billing: config.BillingConfig{
			PortalReturnURL:    "https://app.kolabz.com/settings/billing",
			CheckoutSuccessURL: "https://app.kolabz.com/billing/success",
			CheckoutCancelURL:  "https://app.kolabz.com/billing/cancel",
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, planRepo, subRepo
}

func seedPlan(t *testing.T, repo plans.Repository, id string, active bool) *models.SubscriptionPlan {
	t.Helper()
	plan := &models.SubscriptionPlan{
		ID:                   id,
		Name:                 "Pro",
		PriceMonthly:         1900,
		PriceAnnual:          19000,
		Currency:             enums.CurrencyUSD,
		Active:               active,
		StripeProductID:      "prod_1",
		StripePriceIDMonthly: "price_month",
		StripePriceIDAnnual:  "price_year",
	}
	if err := repo.Create(context.Background(), plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func subWithPeriods(id string, status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Status:   status,
		Customer: &stripe.Customer{ID: "cus_1"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{ID: "si_1", CurrentPeriodStart: 1700000000, CurrentPeriodEnd: 1702592000},
			},
		},
	}
}

func TestChangePlanCreatesIncompleteSubscription(t *testing.T) {
	created := subWithPeriods("sub_new", stripe.SubscriptionStatusIncomplete)
	created.LatestInvoice = &stripe.Invoice{
		ConfirmationSecret: &stripe.InvoiceConfirmationSecret{ClientSecret: "pi_secret_abc"},
	}
	fake := &fakeCheckoutStripe{
		customer:   &stripe.Customer{ID: "cus_1"},
		createResp: created,
	}
	svc, planRepo, subRepo := newCheckoutService(t, fake)
	seedPlan(t, planRepo, "pro", true)

	userID := uuid.New()
	result, err := svc.ChangePlan(context.Background(), ChangePlanParams{
		UserID: userID,
		Email:  "a@kolabz.com",
		PlanID: "pro",
		Annual: false,
	})
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if result.ClientSecret != "pi_secret_abc" {
		t.Fatalf("expected client secret, got %q", result.ClientSecret)
	}
	if result.StripeSubscriptionID != "sub_new" {
		t.Fatalf("unexpected stripe subscription id %q", result.StripeSubscriptionID)
	}
	if got := []string{"customer.create", "subscription.create"}; len(fake.calls) != 2 || fake.calls[0] != got[0] || fake.calls[1] != got[1] {
		t.Fatalf("unexpected stripe calls %v", fake.calls)
	}
	if price := *fake.createParams.Items[0].Price; price != "price_month" {
		t.Fatalf("expected monthly price, got %q", price)
	}
	if behavior := *fake.createParams.PaymentBehavior; behavior != "default_incomplete" {
		t.Fatalf("expected default_incomplete, got %q", behavior)
	}

	stored, err := subRepo.FindByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("find by user: %v", err)
	}
	if stored == nil || stored.StripeSubscriptionID != "sub_new" {
		t.Fatalf("subscription not persisted: %+v", stored)
	}
	if stored.Status != enums.SubscriptionStatusIncomplete {
		t.Fatalf("unexpected status %s", stored.Status)
	}
}

func TestChangePlanSwapsExistingSubscriptionInPlace(t *testing.T) {
	remote := subWithPeriods("sub_live", stripe.SubscriptionStatusActive)
	fake := &fakeCheckoutStripe{
		getResp:    remote,
		updateResp: remote,
	}
	svc, planRepo, subRepo := newCheckoutService(t, fake)
	seedPlan(t, planRepo, "starter", true)
	seedPlan(t, planRepo, "pro", true)

	userID := uuid.New()
	existing := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_live",
		PlanID:               "starter",
		Status:               enums.SubscriptionStatusActive,
	}
	if err := subRepo.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	result, err := svc.ChangePlan(context.Background(), ChangePlanParams{
		UserID: userID,
		PlanID: "pro",
		Annual: true,
	})
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if result.ClientSecret != "" {
		t.Fatalf("in-place swap should not mint a client secret, got %q", result.ClientSecret)
	}
	for _, call := range fake.calls {
		if call == "subscription.create" || call == "customer.create" {
			t.Fatalf("unexpected call %q for existing subscription", call)
		}
	}
	if fake.updateParams == nil {
		t.Fatal("expected a subscription update")
	}
	if *fake.updateParams.Items[0].ID != "si_1" {
		t.Fatalf("update must target the existing item, got %q", *fake.updateParams.Items[0].ID)
	}
	if *fake.updateParams.Items[0].Price != "price_year" {
		t.Fatalf("expected annual price, got %q", *fake.updateParams.Items[0].Price)
	}
	if *fake.updateParams.ProrationBehavior != "create_prorations" {
		t.Fatalf("expected prorations, got %q", *fake.updateParams.ProrationBehavior)
	}

	stored, err := subRepo.FindByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("find by user: %v", err)
	}
	if stored.PlanID != "pro" || !stored.IsAnnual {
		t.Fatalf("plan swap not persisted: %+v", stored)
	}
}

func TestChangePlanRejectsPlanWithoutStripePrice(t *testing.T) {
	svc, planRepo, _ := newCheckoutService(t, &fakeCheckoutStripe{})
	plan := &models.SubscriptionPlan{
		ID:           "unsynced",
		Name:         "Unsynced",
		PriceMonthly: 900,
		Currency:     enums.CurrencyUSD,
		Active:       true,
	}
	if err := planRepo.Create(context.Background(), plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}

	_, err := svc.ChangePlan(context.Background(), ChangePlanParams{
		UserID: uuid.New(),
		PlanID: "unsynced",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChangePlanRejectsInactivePlan(t *testing.T) {
	svc, planRepo, _ := newCheckoutService(t, &fakeCheckoutStripe{})
	seedPlan(t, planRepo, "retired", false)

	_, err := svc.ChangePlan(context.Background(), ChangePlanParams{
		UserID: uuid.New(),
		PlanID: "retired",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateCheckoutSessionReusesKnownCustomer(t *testing.T) {
	fake := &fakeCheckoutStripe{
		session: &stripe.CheckoutSession{URL: "https://checkout.stripe.com/c/pay_123"},
	}
	svc, planRepo, subRepo := newCheckoutService(t, fake)
	seedPlan(t, planRepo, "pro", true)

	userID := uuid.New()
	existing := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		StripeCustomerID:     "cus_known",
		StripeSubscriptionID: "sub_old",
		PlanID:               "pro",
		Status:               enums.SubscriptionStatusCanceled,
	}
	if err := subRepo.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	url, err := svc.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
		UserID: userID,
		Email:  "a@kolabz.com",
		PlanID: "pro",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if url == "" {
		t.Fatal("expected a session url")
	}
	for _, call := range fake.calls {
		if call == "customer.create" {
			t.Fatal("known customer should be reused, not recreated")
		}
	}
}

func TestCreatePortalSessionRequiresBillingProfile(t *testing.T) {
	svc, _, _ := newCheckoutService(t, &fakeCheckoutStripe{})

	_, err := svc.CreatePortalSession(context.Background(), uuid.New())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreatePortalSessionUsesCustomerAndReturnURL(t *testing.T) {
	fake := &fakeCheckoutStripe{
		portal: &stripe.BillingPortalSession{URL: "https://billing.stripe.com/p/session_123"},
	}
	svc, planRepo, subRepo := newCheckoutService(t, fake)
	seedPlan(t, planRepo, "pro", true)

	userID := uuid.New()
	existing := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		StripeCustomerID:     "cus_known",
		StripeSubscriptionID: "sub_live",
		PlanID:               "pro",
		Status:               enums.SubscriptionStatusActive,
	}
	if err := subRepo.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	url, err := svc.CreatePortalSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("create portal session: %v", err)
	}
	if url != "https://billing.stripe.com/p/session_123" {
		t.Fatalf("unexpected url %q", url)
	}
	if *fake.portalParams.Customer != "cus_known" {
		t.Fatalf("unexpected customer %q", *fake.portalParams.Customer)
	}
	if *fake.portalParams.ReturnURL != "https://app.kolabz.com/settings/billing" {
		t.Fatalf("unexpected return url %q", *fake.portalParams.ReturnURL)
	}
}
