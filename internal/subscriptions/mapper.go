package subscriptions

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/kolabz/kolabz-backend/pkg/db/models"
	"github.com/kolabz/kolabz-backend/pkg/enums"
	pkgerrors "github.com/kolabz/kolabz-backend/pkg/errors"
)

// UpdateFromStripe mutates the provided subscription with fresh Stripe data.
func UpdateFromStripe(target *models.Subscription, sub *stripe.Subscription) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}

	target.StripeSubscriptionID = sub.ID
	target.Status = MapStripeStatus(sub.Status)
	if sub.Customer != nil && sub.Customer.ID != "" {
		target.StripeCustomerID = sub.Customer.ID
	}

	startTS, endTS := periodFromSubscription(sub)
	target.CurrentPeriodStart = toTimePtr(startTS)
	target.CurrentPeriodEnd = toTime(endTS)
	target.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	target.CanceledAt = toTimePtr(sub.CanceledAt)

	if sub.DefaultPaymentMethod != nil && sub.DefaultPaymentMethod.ID != "" {
		pm := sub.DefaultPaymentMethod.ID
		target.PaymentMethodID = &pm
	} else {
		target.PaymentMethodID = nil
	}
	return nil
}

// MapStripeStatus normalizes a Stripe status into the canonical enum.
// Unknown values fall back to incomplete rather than failing the sync.
func MapStripeStatus(raw stripe.SubscriptionStatus) enums.SubscriptionStatus {
	normalized := strings.ToLower(strings.TrimSpace(string(raw)))
	if normalized == "" {
		return enums.SubscriptionStatusIncomplete
	}
	if parsed, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return parsed
	}
	return enums.SubscriptionStatusIncomplete
}

// IsActiveStatus reports whether the provided status keeps the subscription usable.
func IsActiveStatus(status enums.SubscriptionStatus) bool {
	switch status {
	case enums.SubscriptionStatusActive, enums.SubscriptionStatusTrialing, enums.SubscriptionStatusPastDue:
		return true
	default:
		return false
	}
}

// periodFromSubscription pulls the current period off the first item; Stripe
// moved period bounds onto subscription items in the basil API.
func periodFromSubscription(sub *stripe.Subscription) (int64, int64) {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0, 0
	}
	item := sub.Items.Data[0]
	return item.CurrentPeriodStart, item.CurrentPeriodEnd
}

func toTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func toTimePtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
