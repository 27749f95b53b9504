package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateSubmissionRequest struct {
	SubjectType string  `json:"subject_type"`
	SubjectID   string  `json:"subject_id"`
	AccountID   string  `json:"account_id"`
	PlanID      string  `json:"plan_id"`
	AmountUSD   float64 `json:"amount_usd"`
	ReceiptURL  string  `json:"receipt_url,omitempty"`
}

type ListSubmissionRequest struct {
	Status string
}

type ReviewSubmissionRequest struct {
	SubmissionID string
	ReviewerID   snowflake.ID
}

type CapturePayPalRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	AccountID   string `json:"account_id"`
	PlanID      string `json:"plan_id"`
	OrderID     string `json:"order_id"`
}

type VerifyCryptoRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	AccountID   string `json:"account_id"`
	PlanID      string `json:"plan_id"`
	TxHash      string `json:"tx_hash"`
}

type CaptureResponse struct {
	PaymentID      snowflake.ID `json:"payment_id"`
	SubscriptionID snowflake.ID `json:"subscription_id"`
	ExpiresAt      time.Time    `json:"expires_at"`
}

type Service interface {
	CreateSubmission(ctx context.Context, req CreateSubmissionRequest) (Submission, error)
	ListSubmissions(ctx context.Context, req ListSubmissionRequest) ([]Submission, error)
	ApproveSubmission(ctx context.Context, req ReviewSubmissionRequest) (Submission, error)
	RejectSubmission(ctx context.Context, req ReviewSubmissionRequest) (Submission, error)
	CapturePayPalOrder(ctx context.Context, req CapturePayPalRequest) (CaptureResponse, error)
	VerifyCryptoPayment(ctx context.Context, req VerifyCryptoRequest) (CaptureResponse, error)
}

type Repository interface {
	InsertSubmission(ctx context.Context, db *gorm.DB, submission *Submission) error
	FindSubmissionByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Submission, error)
	ListSubmissions(ctx context.Context, db *gorm.DB, status SubmissionStatus) ([]Submission, error)
	MarkSubmissionReviewed(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubmissionStatus, reviewerID snowflake.ID, now time.Time) error

	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindPaymentByRef(ctx context.Context, db *gorm.DB, gateway, transactionRef string) (*Payment, error)
	MarkPaymentCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID snowflake.ID, now time.Time) error
	FindPaymentBySubmissionForUpdate(ctx context.Context, db *gorm.DB, submissionID snowflake.ID) (*Payment, error)
}

var (
	ErrSubmissionNotFound  = errors.New("submission_not_found")
	ErrSubmissionProcessed = errors.New("submission_already_processed")
	ErrInvalidSubmission   = errors.New("invalid_submission")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrTransactionUsed     = errors.New("transaction_already_used")
	ErrAmountMismatch      = errors.New("amount_mismatch")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrTransferMismatch    = errors.New("transfer_mismatch")
)
