package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kolabz/kolabz-backend/pkg/enums"
)

// PlanFeature is a single marketing bullet on a plan's pricing card.
type PlanFeature struct {
	Text     string `json:"text"`
	Included bool   `json:"included"`
}

// PlanFeatureList stores the ordered feature bullets as a JSON column.
type PlanFeatureList []PlanFeature

func (l PlanFeatureList) Value() (driver.Value, error) {
	if l == nil {
		l = PlanFeatureList{}
	}
	return json.Marshal(l)
}

func (l *PlanFeatureList) Scan(src any) error {
	if src == nil {
		*l = PlanFeatureList{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("PlanFeatureList: unsupported Scan type %T", src)
	}
}

// SubscriptionPlan captures the local source of truth for a billing plan.
// Prices are integer minor units; Stripe identifiers are filled in by sync.
type SubscriptionPlan struct {
	ID                   string          `gorm:"column:id;primaryKey"`
	Name                 string          `gorm:"column:name;not null"`
	Description          string          `gorm:"column:description"`
	PriceMonthly         int64           `gorm:"column:price_monthly;not null"`
	PriceAnnual          int64           `gorm:"column:price_annual;not null"`
	Currency             enums.Currency  `gorm:"column:currency;not null;default:'usd'"`
	TrialDays            int             `gorm:"column:trial_days;not null;default:0"`
	Features             PlanFeatureList `gorm:"column:features;type:jsonb"`
	Active               bool            `gorm:"column:active;not null;default:true"`
	StripeProductID      string          `gorm:"column:stripe_product_id"`
	StripePriceIDMonthly string          `gorm:"column:stripe_price_id_monthly"`
	StripePriceIDAnnual  string          `gorm:"column:stripe_price_id_annual"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// PriceFor returns the minor-unit amount for the given billing interval.
func (p SubscriptionPlan) PriceFor(interval enums.BillingInterval) int64 {
	if interval == enums.BillingIntervalAnnual {
		return p.PriceAnnual
	}
	return p.PriceMonthly
}

// StripePriceIDFor returns the synced price id for the given interval.
func (p SubscriptionPlan) StripePriceIDFor(interval enums.BillingInterval) string {
	if interval == enums.BillingIntervalAnnual {
		return p.StripePriceIDAnnual
	}
	return p.StripePriceIDMonthly
}

// DisplayPrice renders the minor-unit amount as a major-unit decimal string.
func (p SubscriptionPlan) DisplayPrice(interval enums.BillingInterval) string {
	return decimal.New(p.PriceFor(interval), -2).StringFixed(2)
}
