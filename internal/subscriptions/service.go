package subscriptions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/kolabz/kolabz-backend/pkg/db/models"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
	"github.com/kolabz/kolabz-backend/pkg/logger"
)

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo   Repository
	Stripe StripeSubscriptionClient
	Logg   *logger.Logger
}

// Service reads and mutates the locally persisted subscription state.
type Service struct {
	repo   Repository
	stripe StripeSubscriptionClient
	logg   *logger.Logger
}

// NewService builds a subscription service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo, stripe: params.Stripe, logg: params.Logg}, nil
}

// GetActive returns the user's subscription when it still grants access, nil otherwise.
func (s *Service) GetActive(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || !IsActiveStatus(sub.Status) {
		return nil, nil
	}
	return sub, nil
}

// Cancel stops the user's subscription. With atPeriodEnd the subscription stays
// usable until the paid period runs out; otherwise it is terminated in Stripe now.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID, atPeriodEnd bool) (*models.Subscription, error) {
	sub, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil || sub.StripeSubscriptionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription to cancel")
	}
	if sub.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already canceled")
	}
	if s.stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client unavailable")
	}

	var updated *stripe.Subscription
	if atPeriodEnd {
		updated, err = s.stripe.Update(ctx, sub.StripeSubscriptionID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		})
	} else {
		updated, err = s.stripe.Cancel(ctx, sub.StripeSubscriptionID, nil)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel stripe subscription")
	}

	if err := UpdateFromStripe(sub, updated); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "subscription canceled")
	}
	return sub, nil
}

// RefreshFromStripe re-reads a subscription from Stripe and persists any drift.
// Used by the reconcile job to repair state missed between webhook deliveries.
func (s *Service) RefreshFromStripe(ctx context.Context, sub *models.Subscription) (bool, error) {
	if sub == nil || sub.StripeSubscriptionID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "subscription has no stripe id")
	}
	if s.stripe == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "stripe client unavailable")
	}

	remote, err := s.stripe.Get(ctx, sub.StripeSubscriptionID, nil)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}

	before := *sub
	if err := UpdateFromStripe(sub, remote); err != nil {
		return false, err
	}

	changed := before.Status != sub.Status ||
		!before.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd) ||
		before.CancelAtPeriodEnd != sub.CancelAtPeriodEnd ||
		!stringPtrEqual(before.PaymentMethodID, sub.PaymentMethodID)
	if !changed {
		return false, nil
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}
	return true, nil
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
