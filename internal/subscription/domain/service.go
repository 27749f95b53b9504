package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	"github.com/conectalocal/vitrina/pkg/db/pagination"
	"gorm.io/gorm"
)

type ActivateRequest struct {
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	AccountID   string `json:"account_id"`
	PlanID      string `json:"plan_id"`
}

type ExtendRequest struct {
	SubscriptionID string `json:"-"`
	AdditionalDays int    `json:"additional_days"`
}

type ListSubscriptionRequest struct {
	Status    string
	SubjectID string
	PageToken string
	PageSize  int
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

// PaidPeriodRequest applies one verified paid period to a subject. It
// runs inside the caller's transaction so payment flows can combine it
// with their own writes.
type PaidPeriodRequest struct {
	SubjectType entitlementdomain.SubjectType
	SubjectID   snowflake.ID
	AccountID   snowflake.ID
	PayerID     snowflake.ID
	Plan        plandomain.Plan
}

type PaidPeriodResult struct {
	Subscription Subscription
	ExpiresAt    time.Time
}

type Service interface {
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	Activate(ctx context.Context, req ActivateRequest) (Subscription, error)
	Extend(ctx context.Context, req ExtendRequest) (Subscription, error)
	Deactivate(ctx context.Context, subscriptionID string) error
	ExpireLapsed(ctx context.Context) (int64, error)

	// ApplyPaidPeriodTx is the activation rule shared with the payment
	// flows: cumulative while active, restarted from now once lapsed.
	ApplyPaidPeriodTx(ctx context.Context, tx *gorm.DB, req PaidPeriodRequest) (PaidPeriodResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindActiveBySubjectForUpdate(ctx context.Context, db *gorm.DB, subjectType entitlementdomain.SubjectType, subjectID, payerID snowflake.ID) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListSubscriptionFilter, limit int, cursorID snowflake.ID) ([]Subscription, error)
	FindDueForUpdate(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, endAt, now time.Time) error
}

type ListSubscriptionFilter struct {
	Status    SubscriptionStatus
	SubjectID snowflake.ID
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidDuration      = errors.New("invalid_duration")
	ErrInvalidStatus        = errors.New("invalid_status")
)
