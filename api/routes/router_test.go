package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kolabz/kolabz-backend/internal/checkout"
	"github.com/kolabz/kolabz-backend/internal/plansync"
	pkgauth "github.com/kolabz/kolabz-backend/pkg/auth"
	"github.com/kolabz/kolabz-backend/pkg/config"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	"github.com/kolabz/kolabz-backend/pkg/logger"
)

type routerPlanService struct {
	active []models.SubscriptionPlan
}

func (s *routerPlanService) List(ctx context.Context) ([]models.SubscriptionPlan, error) {
	return s.active, nil
}

func (s *routerPlanService) ListActive(ctx context.Context) ([]models.SubscriptionPlan, error) {
	return s.active, nil
}

func (s *routerPlanService) FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	return nil, nil
}

func (s *routerPlanService) Save(ctx context.Context, plan *models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	return plan, nil
}

func (s *routerPlanService) ToggleStatus(ctx context.Context, id string, active bool) (*models.SubscriptionPlan, error) {
	return nil, nil
}

func (s *routerPlanService) Delete(ctx context.Context, id string) error {
	return nil
}

type routerPlanSync struct{}

func (s *routerPlanSync) Sync(ctx context.Context, planID string) (*plansync.Result, error) {
	return &plansync.Result{}, nil
}

func (s *routerPlanSync) SyncAll(ctx context.Context) (*plansync.Result, error) {
	return &plansync.Result{}, nil
}

type routerSubscriptionService struct{}

func (s *routerSubscriptionService) GetActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return nil, nil
}

func (s *routerSubscriptionService) Cancel(ctx context.Context, userID uuid.UUID, atPeriodEnd bool) (*models.Subscription, error) {
	return &models.Subscription{ID: uuid.New(), Status: enums.SubscriptionStatusCanceled}, nil
}

type routerCheckoutService struct{}

func (s *routerCheckoutService) ChangePlan(ctx context.Context, params checkout.ChangePlanParams) (*checkout.ChangePlanResult, error) {
	return &checkout.ChangePlanResult{Status: enums.SubscriptionStatusActive}, nil
}

func (s *routerCheckoutService) CreateCheckoutSession(ctx context.Context, params checkout.CheckoutSessionParams) (string, error) {
	return "https://checkout.stripe.com/c/pay_1", nil
}

func (s *routerCheckoutService) CreatePortalSession(ctx context.Context, userID uuid.UUID) (string, error) {
	return "https://billing.stripe.com/p/session_1", nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{
		Secret:            "router-test-secret",
		Issuer:            "kolabz",
		ExpirationMinutes: 60,
	}
	return cfg
}

func testRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		nil,
		nil,
		&routerPlanService{active: []models.SubscriptionPlan{{ID: "pro", Name: "Pro", Currency: enums.CurrencyUSD, Active: true}}},
		&routerPlanSync{},
		&routerSubscriptionService{},
		&routerCheckoutService{},
		nil,
		nil,
		nil,
	)
}

func mintToken(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestRouterHealthLive(t *testing.T) {
	router := testRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get("X-Kolabz-Env") != "test" {
		t.Fatalf("expected env header, got %q", resp.Header().Get("X-Kolabz-Env"))
	}
}

func TestRouterPublicPlansNeedsNoAuth(t *testing.T) {
	router := testRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data struct {
			Plans []json.RawMessage `json:"plans"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Plans) != 1 {
		t.Fatalf("expected 1 plan, got %d", len(envelope.Data.Plans))
	}
}

func TestRouterBillingRequiresAuth(t *testing.T) {
	router := testRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/subscription", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
}

func TestRouterBillingAcceptsMemberToken(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/subscription", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, enums.RoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestRouterAdminPlansRejectsMember(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/plans", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, enums.RoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member, got %d", resp.Code)
	}
}

func TestRouterAdminPlansAllowsAdmin(t *testing.T) {
	cfg := testConfig()
	router := testRouter(t, cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/plans", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, cfg, enums.RoleAdmin))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestRouterWebhookRouteExists(t *testing.T) {
	router := testRouter(t, testConfig())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader("{}"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	// wired with a nil service here, so the handler reports its config error
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from unwired webhook deps, got %d", resp.Code)
	}
}
