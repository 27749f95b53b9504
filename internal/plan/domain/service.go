package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreatePlanRequest struct {
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Tier          int           `json:"tier"`
	BillingPeriod BillingPeriod `json:"billing_period"`
	PriceUSD      float64       `json:"price_usd"`
}

type ListPlanRequest struct {
	IncludeInactive bool
}

type Service interface {
	List(ctx context.Context, req ListPlanRequest) ([]Plan, error)
	GetByID(ctx context.Context, id string) (Plan, error)
	Create(ctx context.Context, req CreatePlanRequest) (Plan, error)
	Deactivate(ctx context.Context, id string) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	List(ctx context.Context, db *gorm.DB, includeInactive bool) ([]Plan, error)
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error
}

var (
	ErrPlanNotFound         = errors.New("plan_not_found")
	ErrPlanInactive         = errors.New("plan_inactive")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrInvalidPlanCode      = errors.New("invalid_plan_code")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrInvalidBillingPeriod = errors.New("invalid_billing_period")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrPlanCodeExists       = errors.New("plan_code_exists")
)
