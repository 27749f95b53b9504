// Package domain contains manual payment submissions and the payment
// ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "PENDING"
	SubmissionStatusApproved SubmissionStatus = "APPROVED"
	SubmissionStatusRejected SubmissionStatus = "REJECTED"
)

// Submission is a manually reported payment awaiting admin review.
// Once approved or rejected it never changes again.
type Submission struct {
	ID          snowflake.ID                  `gorm:"primaryKey" json:"id"`
	SubjectType entitlementdomain.SubjectType `gorm:"type:text;not null" json:"subject_type"`
	SubjectID   snowflake.ID                  `gorm:"not null;index" json:"subject_id"`
	AccountID   snowflake.ID                  `gorm:"not null;index" json:"account_id"`
	PayerID     snowflake.ID                  `gorm:"not null" json:"payer_id"`
	PlanID      snowflake.ID                  `gorm:"not null" json:"plan_id"`
	AmountUSD   float64                       `gorm:"not null" json:"amount_usd"`
	ReceiptURL  string                        `gorm:"type:text" json:"receipt_url,omitempty"`
	Status      SubmissionStatus              `gorm:"type:text;not null" json:"status"`
	ReviewedBy  *snowflake.ID                 `gorm:"" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time                    `gorm:"" json:"reviewed_at,omitempty"`
	CreatedAt   time.Time                     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time                     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Submission) TableName() string { return "payment_submissions" }

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Payment is one ledger row per applied payment. The unique
// (gateway, transaction_ref) pair is the replay guard for gateway
// callbacks.
type Payment struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubmissionID   *snowflake.ID     `gorm:"index" json:"submission_id,omitempty"`
	SubscriptionID *snowflake.ID     `gorm:"index" json:"subscription_id,omitempty"`
	Gateway        string            `gorm:"type:text;not null;uniqueIndex:idx_payments_gateway_ref" json:"gateway"`
	TransactionRef string            `gorm:"type:text;not null;uniqueIndex:idx_payments_gateway_ref" json:"transaction_ref"`
	Amount         float64           `gorm:"not null" json:"amount"`
	Currency       string            `gorm:"type:text;not null" json:"currency"`
	Status         PaymentStatus     `gorm:"type:text;not null" json:"status"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
