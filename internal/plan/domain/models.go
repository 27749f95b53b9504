// Package domain contains plan definitions and billing-period rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingPeriod categorizes a plan's duration.
type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

const (
	// FallbackDurationDays applies when a stored billing period is not
	// recognized. Unknown periods degrade to a month instead of failing
	// the request; call sites log a warning when this happens.
	FallbackDurationDays = 30

	MonthlyDurationDays = 30
	YearlyDurationDays  = 365
)

// DurationDays resolves a billing period to a day count. The second
// return reports whether the period was recognized.
func DurationDays(period BillingPeriod) (int, bool) {
	switch period {
	case BillingPeriodMonthly:
		return MonthlyDurationDays, true
	case BillingPeriodYearly:
		return YearlyDurationDays, true
	default:
		return FallbackDurationDays, false
	}
}

// Plan defines a purchasable membership tier.
type Plan struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	Code          string        `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name          string        `gorm:"type:text;not null" json:"name"`
	Tier          int           `gorm:"not null" json:"tier"`
	BillingPeriod BillingPeriod `gorm:"type:text;not null" json:"billing_period"`
	DurationDays  int           `gorm:"not null" json:"duration_days"`
	PriceUSD      float64       `gorm:"not null" json:"price_usd"`
	Active        bool          `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }
