package stripewebhook

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/kolabz/kolabz-backend/internal/settings"
	"github.com/kolabz/kolabz-backend/pkg/db/models"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
	"github.com/kolabz/kolabz-backend/pkg/logger"
)

type ServiceParams struct {
	SettingsRepo settings.Repository
	Logg         *logger.Logger
}

// Service dispatches verified Stripe events. Subscription lifecycle events are
// acknowledged but not applied here; local rows are refreshed by the reconcile
// worker, which reads authoritative state instead of trusting event ordering.
type Service struct {
	settingsRepo settings.Repository
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.SettingsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settings repo required")
	}
	if params.Logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		settingsRepo: params.SettingsRepo,
		logg:         params.Logg,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	ctx = s.logg.WithEventID(ctx, event.ID)

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		return s.recordPaymentIntent(ctx, event)
	case stripe.EventTypeCheckoutSessionCompleted:
		s.logg.Info(ctx, "checkout session completed")
		return nil
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)), "subscription lifecycle event received")
		return nil
	default:
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)), "unhandled stripe event")
		return nil
	}
}

func (s *Service) recordPaymentIntent(ctx context.Context, event *stripe.Event) error {
	intentID := event.GetObjectValue("id")
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	setting := &models.AdminSetting{
		Key:       models.AdminSettingLastPaymentIntentID,
		Value:     intentID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.settingsRepo.Upsert(ctx, setting); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment intent")
	}

	s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", intentID), "payment intent succeeded")
	return nil
}
