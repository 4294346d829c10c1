package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kolabz/kolabz-backend/pkg/enums"
)

// Subscription persists Stripe subscription state per user.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;not null;index"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;unique"`
	PlanID               string                   `gorm:"column:plan_id;not null;index"`
	IsAnnual             bool                     `gorm:"column:is_annual;not null;default:false"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null;default:'incomplete'"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null"`
	PaymentMethodID      *string                  `gorm:"column:payment_method_id"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Interval derives the billing interval from the stored annual flag.
func (s Subscription) Interval() enums.BillingInterval {
	return enums.IntervalFromAnnualFlag(s.IsAnnual)
}
