package billing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kolabz/kolabz-backend/api/middleware"
	"github.com/kolabz/kolabz-backend/api/responses"
	"github.com/kolabz/kolabz-backend/api/validators"
	"github.com/kolabz/kolabz-backend/internal/checkout"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
	"github.com/kolabz/kolabz-backend/pkg/logger"
)

// SubscriptionService exposes the caller's subscription state.
type SubscriptionService interface {
	GetActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	Cancel(ctx context.Context, userID uuid.UUID, atPeriodEnd bool) (*models.Subscription, error)
}

// CheckoutService orchestrates plan changes against Stripe.
type CheckoutService interface {
	ChangePlan(ctx context.Context, params checkout.ChangePlanParams) (*checkout.ChangePlanResult, error)
	CreateCheckoutSession(ctx context.Context, params checkout.CheckoutSessionParams) (string, error)
	CreatePortalSession(ctx context.Context, userID uuid.UUID) (string, error)
}

type subscriptionResponse struct {
	ID                   string `json:"id"`
	PlanID               string `json:"plan_id"`
	Status               string `json:"status"`
	IsAnnual             bool   `json:"is_annual"`
	CurrentPeriodEnd     string `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool   `json:"cancel_at_period_end"`
	StripeSubscriptionID string `json:"stripe_subscription_id,omitempty"`
}

type changePlanRequest struct {
	PlanID   string `json:"plan_id"`
	IsAnnual bool   `json:"is_annual"`
	Email    string `json:"email"`
}

type cancelRequest struct {
	AtPeriodEnd *bool `json:"at_period_end"`
}

func resolveUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}

func SubscriptionDetail(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.GetActive(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteSuccess(w, map[string]any{"subscription": nil})
			return
		}
		responses.WriteSuccess(w, map[string]any{"subscription": subscriptionToResponse(sub)})
	}
}

func ChangePlan(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(payload.PlanID) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan_id is required"))
			return
		}

		result, err := svc.ChangePlan(ctx, checkout.ChangePlanParams{
			UserID: userID,
			Email:  strings.TrimSpace(payload.Email),
			PlanID: strings.TrimSpace(payload.PlanID),
			Annual: payload.IsAnnual,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CancelSubscription(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		atPeriodEnd := true
		if r.ContentLength > 0 {
			var payload cancelRequest
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if payload.AtPeriodEnd != nil {
				atPeriodEnd = *payload.AtPeriodEnd
			}
		}

		sub, err := svc.Cancel(ctx, userID, atPeriodEnd)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"subscription": subscriptionToResponse(sub)})
	}
}

func CreateCheckoutSession(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload changePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if strings.TrimSpace(payload.PlanID) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "plan_id is required"))
			return
		}

		url, err := svc.CreateCheckoutSession(ctx, checkout.CheckoutSessionParams{
			UserID: userID,
			Email:  strings.TrimSpace(payload.Email),
			PlanID: strings.TrimSpace(payload.PlanID),
			Annual: payload.IsAnnual,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

func CreatePortalSession(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := resolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		url, err := svc.CreatePortalSession(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

func subscriptionToResponse(sub *models.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		ID:                   sub.ID.String(),
		PlanID:               sub.PlanID,
		Status:               string(sub.Status),
		IsAnnual:             sub.IsAnnual,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		StripeSubscriptionID: sub.StripeSubscriptionID,
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		resp.CurrentPeriodEnd = sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	return resp
}
