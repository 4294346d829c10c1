package plansync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kolabz/kolabz-backend/internal/plans"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
)

type fakeCatalog struct {
	calls []string

	products int
	prices   int

	deactivateErr error
	priceErr      error
}

func (f *fakeCatalog) ProductCreate(_ context.Context, params *stripe.ProductParams) (*stripe.Product, error) {
	f.products++
	id := fmt.Sprintf("prod_%d", f.products)
	f.calls = append(f.calls, "product.create:"+id)
	return &stripe.Product{ID: id}, nil
}

func (f *fakeCatalog) ProductUpdate(_ context.Context, id string, params *stripe.ProductParams) (*stripe.Product, error) {
	f.calls = append(f.calls, "product.update:"+id)
	return &stripe.Product{ID: id}, nil
}

func (f *fakeCatalog) PriceCreate(_ context.Context, params *stripe.PriceParams) (*stripe.Price, error) {
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	f.prices++
	id := fmt.Sprintf("price_%d", f.prices)
	f.calls = append(f.calls, "price.create:"+id)
	return &stripe.Price{ID: id}, nil
}

func (f *fakeCatalog) PriceDeactivate(_ context.Context, id string) (*stripe.Price, error) {
	f.calls = append(f.calls, "price.deactivate:"+id)
	if f.deactivateErr != nil {
		return nil, f.deactivateErr
	}
	return &stripe.Price{ID: id, Active: false}, nil
}

func newSyncService(t *testing.T, catalog *fakeCatalog) (*Service, plans.Repository) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.SubscriptionPlan{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := plans.NewRepository(conn)
	svc, err := NewService(ServiceParams{Repo: repo, Stripe: catalog})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func seedPlan(t *testing.T, repo plans.Repository, plan models.SubscriptionPlan) models.SubscriptionPlan {
	t.Helper()
	if plan.Currency == "" {
		plan.Currency = enums.CurrencyUSD
	}
	if err := repo.Create(context.Background(), &plan); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return plan
}

func TestSyncMintsProductAndPricesForNewPlan(t *testing.T) {
	catalog := &fakeCatalog{}
	svc, repo := newSyncService(t, catalog)
	ctx := context.Background()

	plan := seedPlan(t, repo, models.SubscriptionPlan{
		ID:           "pro",
		Name:         "Pro",
		PriceMonthly: 2900,
		PriceAnnual:  29000,
		Active:       true,
	})

	result, err := svc.Sync(ctx, plan.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.PlansSynced != 1 || result.PricesCreated != 2 || result.PricesDeactivated != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	stored, err := repo.FindByID(ctx, plan.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.StripeProductID == "" {
		t.Fatal("expected stripe product id persisted")
	}
	if stored.StripePriceIDMonthly == "" || stored.StripePriceIDAnnual == "" {
		t.Fatalf("expected both price ids persisted, got %+v", stored)
	}
	if stored.StripePriceIDMonthly == stored.StripePriceIDAnnual {
		t.Fatal("expected distinct price ids per interval")
	}
}

func TestSyncDeactivatesOldPriceBeforeCreatingNew(t *testing.T) {
	catalog := &fakeCatalog{}
	svc, repo := newSyncService(t, catalog)
	ctx := context.Background()

	seedPlan(t, repo, models.SubscriptionPlan{
		ID:                   "pro",
		Name:                 "Pro",
		PriceMonthly:         3900,
		PriceAnnual:          39000,
		Active:               true,
		StripeProductID:      "prod_existing",
		StripePriceIDMonthly: "price_old_m",
		StripePriceIDAnnual:  "price_old_a",
	})

	result, err := svc.Sync(ctx, "pro")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.PricesDeactivated != 2 || result.PricesCreated != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	// per interval: deactivate fires before the replacement create
	var sequence []string
	for _, call := range catalog.calls {
		if call == "price.deactivate:price_old_m" || call == "price.deactivate:price_old_a" {
			sequence = append(sequence, "deactivate")
		}
		if call == "price.create:price_1" || call == "price.create:price_2" {
			sequence = append(sequence, "create")
		}
	}
	want := []string{"deactivate", "create", "deactivate", "create"}
	if len(sequence) != len(want) {
		t.Fatalf("unexpected call sequence %v", catalog.calls)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("expected %v, got %v (calls %v)", want, sequence, catalog.calls)
		}
	}

	stored, _ := repo.FindByID(ctx, "pro")
	if stored.StripePriceIDMonthly == "price_old_m" || stored.StripePriceIDAnnual == "price_old_a" {
		t.Fatalf("expected rotated price ids, got %+v", stored)
	}
}

func TestSyncToleratesDeactivationFailure(t *testing.T) {
	catalog := &fakeCatalog{deactivateErr: errors.New("resource_missing")}
	svc, repo := newSyncService(t, catalog)
	ctx := context.Background()

	seedPlan(t, repo, models.SubscriptionPlan{
		ID:                   "pro",
		Name:                 "Pro",
		PriceMonthly:         2900,
		PriceAnnual:          29000,
		Active:               true,
		StripeProductID:      "prod_existing",
		StripePriceIDMonthly: "price_old_m",
	})

	result, err := svc.Sync(ctx, "pro")
	if err != nil {
		t.Fatalf("expected deactivation failure to be tolerated, got %v", err)
	}
	if result.PlansSynced != 1 || result.PricesDeactivated != 0 {
		t.Fatalf("unexpected result %+v", result)
	}

	stored, _ := repo.FindByID(ctx, "pro")
	if stored.StripePriceIDMonthly == "price_old_m" {
		t.Fatal("expected monthly price rotated despite failed deactivation")
	}
}

func TestSyncAbortsOnPriceCreateFailure(t *testing.T) {
	catalog := &fakeCatalog{priceErr: errors.New("rate_limited")}
	svc, repo := newSyncService(t, catalog)
	ctx := context.Background()

	seedPlan(t, repo, models.SubscriptionPlan{
		ID:           "pro",
		Name:         "Pro",
		PriceMonthly: 2900,
		PriceAnnual:  29000,
		Active:       true,
	})

	result, err := svc.Sync(ctx, "pro")
	if err == nil {
		t.Fatal("expected sync to abort on price create failure")
	}
	if result.PlansSynced != 0 {
		t.Fatalf("expected no plans marked synced, got %+v", result)
	}

	// plan row untouched: product id was minted but the run never persisted
	stored, _ := repo.FindByID(ctx, "pro")
	if stored.StripePriceIDMonthly != "" {
		t.Fatalf("expected no price ids persisted, got %+v", stored)
	}
}

func TestSyncTouchesOnlyTheRequestedPlan(t *testing.T) {
	catalog := &fakeCatalog{}
	svc, repo := newSyncService(t, catalog)
	ctx := context.Background()

	seedPlan(t, repo, models.SubscriptionPlan{
		ID:                   "edited",
		Name:                 "Edited",
		PriceMonthly:         4900,
		PriceAnnual:          49000,
		Active:               true,
		StripeProductID:      "prod_e",
		StripePriceIDMonthly: "price_e_m",
		StripePriceIDAnnual:  "price_e_a",
	})
	seedPlan(t, repo, models.SubscriptionPlan{
		ID:                   "untouched",
		Name:                 "Untouched",
		PriceMonthly:         1900,
		PriceAnnual:          19000,
		Active:               true,
		StripeProductID:      "prod_u",
		StripePriceIDMonthly: "price_u_m",
		StripePriceIDAnnual:  "price_u_a",
	})

	result, err := svc.Sync(ctx, "edited")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.PlansSynced != 1 || result.PricesCreated != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	for _, call := range catalog.calls {
		if strings.Contains(call, "price_u_") || strings.Contains(call, "prod_u") {
			t.Fatalf("sync reached the other plan: %v", catalog.calls)
		}
	}

	other, _ := repo.FindByID(ctx, "untouched")
	if other.StripePriceIDMonthly != "price_u_m" || other.StripePriceIDAnnual != "price_u_a" {
		t.Fatalf("expected other plan's price ids preserved, got %+v", other)
	}
}

func TestSyncUnknownPlan(t *testing.T) {
	svc, _ := newSyncService(t, &fakeCatalog{})

	_, err := svc.Sync(context.Background(), "ghost")
	if te := pkgerrors.As(err); te == nil || te.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSyncAllWalksCatalog(t *testing.T) {
	catalog := &fakeCatalog{}
	svc, repo := newSyncService(t, catalog)
	ctx := context.Background()

	seedPlan(t, repo, models.SubscriptionPlan{ID: "starter", Name: "Starter", PriceMonthly: 900, PriceAnnual: 9000, Active: true})
	seedPlan(t, repo, models.SubscriptionPlan{ID: "pro", Name: "Pro", PriceMonthly: 2900, PriceAnnual: 29000, Active: true})

	result, err := svc.SyncAll(ctx)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if result.PlansSynced != 2 || result.PricesCreated != 4 {
		t.Fatalf("unexpected result %+v", result)
	}
}
