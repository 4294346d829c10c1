package models

import "time"

// AdminSetting is a key/value row for operational state written by webhooks
// and admin tooling.
type AdminSetting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AdminSetting) TableName() string {
	return "admin_settings"
}

// Well-known admin setting keys.
const (
	AdminSettingLastPaymentIntentID = "last_payment_intent_id"
)
