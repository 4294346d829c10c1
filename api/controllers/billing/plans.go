package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kolabz/kolabz-backend/api/responses"
	"github.com/kolabz/kolabz-backend/api/validators"
	"github.com/kolabz/kolabz-backend/internal/plansync"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
	"github.com/kolabz/kolabz-backend/pkg/logger"
)

// PlanService describes the plan catalog methods used by the HTTP controllers.
type PlanService interface {
	List(ctx context.Context) ([]models.SubscriptionPlan, error)
	ListActive(ctx context.Context) ([]models.SubscriptionPlan, error)
	FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error)
	Save(ctx context.Context, plan *models.SubscriptionPlan) (*models.SubscriptionPlan, error)
	ToggleStatus(ctx context.Context, id string, active bool) (*models.SubscriptionPlan, error)
	Delete(ctx context.Context, id string) error
}

// PlanSyncService pushes the local catalog to Stripe.
type PlanSyncService interface {
	Sync(ctx context.Context, planID string) (*plansync.Result, error)
	SyncAll(ctx context.Context) (*plansync.Result, error)
}

type planFeaturePayload struct {
	Text     string `json:"text"`
	Included bool   `json:"included"`
}

type planResponse struct {
	ID                   string               `json:"id"`
	Name                 string               `json:"name"`
	Description          string               `json:"description"`
	PriceMonthly         int64                `json:"price_monthly"`
	PriceAnnual          int64                `json:"price_annual"`
	DisplayPriceMonthly  string               `json:"display_price_monthly"`
	DisplayPriceAnnual   string               `json:"display_price_annual"`
	Currency             string               `json:"currency"`
	TrialDays            int                  `json:"trial_days"`
	Features             []planFeaturePayload `json:"features"`
	Active               bool                 `json:"active"`
	StripeProductID      string               `json:"stripe_product_id,omitempty"`
	StripePriceIDMonthly string               `json:"stripe_price_id_monthly,omitempty"`
	StripePriceIDAnnual  string               `json:"stripe_price_id_annual,omitempty"`
	CreatedAt            string               `json:"created_at"`
	UpdatedAt            string               `json:"updated_at"`
}

type planListResponse struct {
	Plans []planResponse `json:"plans"`
}

type planUpsertRequest struct {
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name"`
	Description  string               `json:"description"`
	PriceMonthly *int64               `json:"price_monthly"`
	PriceAnnual  *int64               `json:"price_annual"`
	Currency     string               `json:"currency"`
	TrialDays    *int                 `json:"trial_days"`
	Features     []planFeaturePayload `json:"features"`
	Active       *bool                `json:"active"`
}

type planToggleRequest struct {
	Active *bool `json:"active"`
}

func AdminPlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.List(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(plans)})
	}
}

func AdminPlanUpsert(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		var payload planUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan, err := buildPlanFromRequest(payload, strings.TrimSpace(payload.ID))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		saved, err := svc.Save(ctx, plan)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planToResponse(saved))
	}
}

func AdminPlanUpdate(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		planID := strings.TrimSpace(chi.URLParam(r, "planId"))
		if planID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required"))
			return
		}

		existing, err := svc.FindByID(ctx, planID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if existing == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found"))
			return
		}

		var payload planUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan, err := buildPlanFromRequest(payload, planID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		saved, err := svc.Save(ctx, plan)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planToResponse(saved))
	}
}

func AdminPlanToggle(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		planID := strings.TrimSpace(chi.URLParam(r, "planId"))
		if planID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required"))
			return
		}

		var payload planToggleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if payload.Active == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "active is required"))
			return
		}

		plan, err := svc.ToggleStatus(ctx, planID, *payload.Active)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planToResponse(plan))
	}
}

func AdminPlanDelete(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		planID := strings.TrimSpace(chi.URLParam(r, "planId"))
		if planID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required"))
			return
		}

		if err := svc.Delete(ctx, planID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"id": planID, "status": "deleted"})
	}
}

// AdminPlanSync pushes one plan to Stripe, rotating only that plan's prices.
func AdminPlanSync(svc PlanSyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan sync service unavailable"))
			return
		}

		planID := strings.TrimSpace(chi.URLParam(r, "planId"))
		if planID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required"))
			return
		}

		result, err := svc.Sync(ctx, planID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminPlansSync runs the bulk catalog sync.
func AdminPlansSync(svc PlanSyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan sync service unavailable"))
			return
		}

		result, err := svc.SyncAll(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PublicPlansList serves the pricing page catalog; no auth required.
func PublicPlansList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.ListActive(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, planListResponse{Plans: plansToResponse(plans)})
	}
}

func plansToResponse(plans []models.SubscriptionPlan) []planResponse {
	result := make([]planResponse, 0, len(plans))
	for _, plan := range plans {
		result = append(result, planToResponse(&plan))
	}
	return result
}

func planToResponse(plan *models.SubscriptionPlan) planResponse {
	features := make([]planFeaturePayload, 0, len(plan.Features))
	for _, feature := range plan.Features {
		features = append(features, planFeaturePayload{Text: feature.Text, Included: feature.Included})
	}

	return planResponse{
		ID:                   plan.ID,
		Name:                 plan.Name,
		Description:          plan.Description,
		PriceMonthly:         plan.PriceMonthly,
		PriceAnnual:          plan.PriceAnnual,
		DisplayPriceMonthly:  plan.DisplayPrice(enums.BillingIntervalMonthly),
		DisplayPriceAnnual:   plan.DisplayPrice(enums.BillingIntervalAnnual),
		Currency:             string(plan.Currency),
		TrialDays:            plan.TrialDays,
		Features:             features,
		Active:               plan.Active,
		StripeProductID:      plan.StripeProductID,
		StripePriceIDMonthly: plan.StripePriceIDMonthly,
		StripePriceIDAnnual:  plan.StripePriceIDAnnual,
		CreatedAt:            plan.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:            plan.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func buildPlanFromRequest(payload planUpsertRequest, id string) (*models.SubscriptionPlan, error) {
	trimmedName := strings.TrimSpace(payload.Name)
	if trimmedName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}

	if payload.PriceMonthly == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_monthly is required")
	}
	if payload.PriceAnnual == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price_annual is required")
	}

	currency := enums.CurrencyUSD
	if trimmed := strings.TrimSpace(payload.Currency); trimmed != "" {
		parsed, err := enums.ParseCurrency(trimmed)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
		}
		currency = parsed
	}

	features := make(models.PlanFeatureList, 0, len(payload.Features))
	for _, feature := range payload.Features {
		text := strings.TrimSpace(feature.Text)
		if text == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "feature text is required")
		}
		features = append(features, models.PlanFeature{Text: text, Included: feature.Included})
	}

	active := true
	if payload.Active != nil {
		active = *payload.Active
	}
	trialDays := 0
	if payload.TrialDays != nil {
		trialDays = *payload.TrialDays
	}

	return &models.SubscriptionPlan{
		ID:           id,
		Name:         trimmedName,
		Description:  strings.TrimSpace(payload.Description),
		PriceMonthly: *payload.PriceMonthly,
		PriceAnnual:  *payload.PriceAnnual,
		Currency:     currency,
		TrialDays:    trialDays,
		Features:     features,
		Active:       active,
	}, nil
}
