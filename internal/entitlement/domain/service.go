package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type GetEntitlementRequest struct {
	SubjectType string
	SubjectID   string
}

// Service exposes read access to entitlements. Mutations go through the
// subscription lifecycle and are not exposed here.
type Service interface {
	GetBySubject(ctx context.Context, req GetEntitlementRequest) (Entitlement, error)
}

// Grant is the write applied when a paid period is activated or
// extended for a subject.
type Grant struct {
	SubjectType SubjectType
	SubjectID   snowflake.ID
	AccountID   snowflake.ID
	Tier        int
	PlanID      snowflake.ID
	ExpiresAt   time.Time
}

type Repository interface {
	FindBySubject(ctx context.Context, db *gorm.DB, subjectType SubjectType, subjectID snowflake.ID) (*Entitlement, error)
	FindBySubjectForUpdate(ctx context.Context, db *gorm.DB, subjectType SubjectType, subjectID snowflake.ID) (*Entitlement, error)
	FindByAccountForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]Entitlement, error)
	Insert(ctx context.Context, db *gorm.DB, entitlement *Entitlement) error
	ApplyGrant(ctx context.Context, db *gorm.DB, id snowflake.ID, grant Grant, now time.Time) error
	Reset(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	SetHighlight(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error
}

var (
	ErrEntitlementNotFound = errors.New("entitlement_not_found")
	ErrInvalidSubjectType  = errors.New("invalid_subject_type")
	ErrInvalidSubject      = errors.New("invalid_subject")
)
