package plans

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
)

// ServiceParams groups dependencies for the plan service.
type ServiceParams struct {
	Repo Repository
}

// Service owns the local plan catalog. Stripe identifiers on a plan are
// written by the sync service, never by callers of Save.
type Service struct {
	repo Repository
}

// NewService builds a plan service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// List returns all plans ordered by monthly price ascending.
func (s *Service) List(ctx context.Context) ([]models.SubscriptionPlan, error) {
	return s.repo.List(ctx, ListQuery{})
}

// ListActive returns only plans currently offered for purchase.
func (s *Service) ListActive(ctx context.Context) ([]models.SubscriptionPlan, error) {
	return s.repo.List(ctx, ListQuery{ActiveOnly: true})
}

// FindByID loads a single plan, returning nil when absent.
func (s *Service) FindByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	return s.repo.FindByID(ctx, id)
}

// Save upserts a plan. A plan without an id is created with a fresh uuid;
// an existing plan keeps its Stripe identifiers and created_at.
func (s *Service) Save(ctx context.Context, plan *models.SubscriptionPlan) (*models.SubscriptionPlan, error) {
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan is required")
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}

	if strings.TrimSpace(plan.ID) == "" {
		plan.ID = uuid.NewString()
		if err := s.repo.Create(ctx, plan); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
		}
		return plan, nil
	}

	existing, err := s.repo.FindByID(ctx, plan.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if existing == nil {
		if err := s.repo.Create(ctx, plan); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
		}
		return plan, nil
	}

	existing.Name = plan.Name
	existing.Description = plan.Description
	existing.PriceMonthly = plan.PriceMonthly
	existing.PriceAnnual = plan.PriceAnnual
	existing.Currency = plan.Currency
	existing.TrialDays = plan.TrialDays
	existing.Features = plan.Features
	existing.Active = plan.Active

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update plan")
	}
	return existing, nil
}

// ToggleStatus sets the active flag on a plan. The target state comes from
// the caller, so a replayed request lands on the same result.
func (s *Service) ToggleStatus(ctx context.Context, id string, active bool) (*models.SubscriptionPlan, error) {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if plan.Active == active {
		return plan, nil
	}

	plan.Active = active
	if err := s.repo.Update(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update plan")
	}
	return plan, nil
}

// Delete removes a plan from the local catalog. Stripe products are left
// untouched; deactivation there happens through sync.
func (s *Service) Delete(ctx context.Context, id string) error {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete plan")
	}
	return nil
}

func validatePlan(plan *models.SubscriptionPlan) error {
	details := map[string]string{}
	if strings.TrimSpace(plan.Name) == "" {
		details["name"] = "is required"
	}
	if plan.PriceMonthly < 0 {
		details["price_monthly"] = "must not be negative"
	}
	if plan.PriceAnnual < 0 {
		details["price_annual"] = "must not be negative"
	}
	if plan.TrialDays < 0 {
		details["trial_days"] = "must not be negative"
	}
	if plan.Currency == "" {
		plan.Currency = enums.CurrencyUSD
	} else if !plan.Currency.IsValid() {
		details["currency"] = "is invalid"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid plan").WithDetails(details)
	}
	return nil
}
