// Package domain contains the subscription record and lifecycle contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending SubscriptionStatus = "PENDING"
	SubscriptionStatusActive  SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired SubscriptionStatus = "EXPIRED"
)

// Subscription captures one paid period for a subject. Payments extend
// EndAt on the existing active record instead of opening a new one.
type Subscription struct {
	ID          snowflake.ID                  `gorm:"primaryKey" json:"id"`
	SubjectType entitlementdomain.SubjectType `gorm:"type:text;not null" json:"subject_type"`
	SubjectID   snowflake.ID                  `gorm:"not null;index" json:"subject_id"`
	AccountID   snowflake.ID                  `gorm:"not null;index" json:"account_id"`
	PayerID     snowflake.ID                  `gorm:"not null" json:"payer_id"`
	PlanID      snowflake.ID                  `gorm:"not null" json:"plan_id"`
	Status      SubscriptionStatus            `gorm:"type:text;not null" json:"status"`
	StartAt     time.Time                     `gorm:"not null" json:"start_at"`
	EndAt       time.Time                     `gorm:"not null" json:"end_at"`
	Metadata    datatypes.JSONMap             `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time                     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time                     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
