// Package domain contains the unified entitlement record and expiry rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubjectType identifies which kind of entity an entitlement applies to.
type SubjectType string

const (
	SubjectTypeBusiness SubjectType = "business"
	SubjectTypeAccount  SubjectType = "account"
)

// ParseSubjectType validates a raw subject type.
func ParseSubjectType(raw string) (SubjectType, bool) {
	switch SubjectType(raw) {
	case SubjectTypeBusiness:
		return SubjectTypeBusiness, true
	case SubjectTypeAccount:
		return SubjectTypeAccount, true
	default:
		return "", false
	}
}

// Tier levels. Zero means no paid membership.
const (
	TierNone     = 0
	TierConecta  = 1
	TierDestaca  = 2
	TierFundador = 3
)

// Entitlement records a subject's paid access: its tier, when it runs
// out, and whether the highlight perk is currently on. AccountID is the
// owning account; for account subjects it equals SubjectID.
type Entitlement struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	SubjectType     SubjectType   `gorm:"type:text;not null" json:"subject_type"`
	SubjectID       snowflake.ID  `gorm:"not null" json:"subject_id"`
	AccountID       snowflake.ID  `gorm:"not null;index" json:"account_id"`
	Tier            int           `gorm:"not null;default:0" json:"tier"`
	PlanID          *snowflake.ID `gorm:"" json:"plan_id,omitempty"`
	ExpiresAt       *time.Time    `gorm:"" json:"expires_at,omitempty"`
	HighlightActive bool          `gorm:"not null;default:false" json:"highlight_active"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Entitlement) TableName() string { return "entitlements" }

// Active reports whether the entitlement grants paid access at the
// given instant. A stored tier with a null or past expiry grants
// nothing.
func (e Entitlement) Active(now time.Time) bool {
	if e.Tier < TierConecta {
		return false
	}
	if e.ExpiresAt == nil {
		return false
	}
	return e.ExpiresAt.After(now)
}
