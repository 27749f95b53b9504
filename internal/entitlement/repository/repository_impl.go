package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() entitlementdomain.Repository {
	return &repo{}
}

const selectColumns = `id, subject_type, subject_id, account_id, tier, plan_id, expires_at,
	 highlight_active, created_at, updated_at`

func (r *repo) FindBySubject(ctx context.Context, db *gorm.DB, subjectType entitlementdomain.SubjectType, subjectID snowflake.ID) (*entitlementdomain.Entitlement, error) {
	var entitlement entitlementdomain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM entitlements WHERE subject_type = ? AND subject_id = ?`,
		subjectType,
		subjectID,
	).Scan(&entitlement).Error
	if err != nil {
		return nil, err
	}
	if entitlement.ID == 0 {
		return nil, nil
	}
	return &entitlement, nil
}

func (r *repo) FindBySubjectForUpdate(ctx context.Context, db *gorm.DB, subjectType entitlementdomain.SubjectType, subjectID snowflake.ID) (*entitlementdomain.Entitlement, error) {
	var entitlement entitlementdomain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM entitlements WHERE subject_type = ? AND subject_id = ? FOR UPDATE`,
		subjectType,
		subjectID,
	).Scan(&entitlement).Error
	if err != nil {
		return nil, err
	}
	if entitlement.ID == 0 {
		return nil, nil
	}
	return &entitlement, nil
}

func (r *repo) FindByAccountForUpdate(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]entitlementdomain.Entitlement, error) {
	var entitlements []entitlementdomain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM entitlements WHERE account_id = ? ORDER BY id ASC FOR UPDATE`,
		accountID,
	).Scan(&entitlements).Error
	if err != nil {
		return nil, err
	}
	return entitlements, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entitlement *entitlementdomain.Entitlement) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (
			id, subject_type, subject_id, account_id, tier, plan_id, expires_at,
			highlight_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entitlement.ID,
		entitlement.SubjectType,
		entitlement.SubjectID,
		entitlement.AccountID,
		entitlement.Tier,
		entitlement.PlanID,
		entitlement.ExpiresAt,
		entitlement.HighlightActive,
		entitlement.CreatedAt,
		entitlement.UpdatedAt,
	).Error
}

func (r *repo) ApplyGrant(ctx context.Context, db *gorm.DB, id snowflake.ID, grant entitlementdomain.Grant, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET tier = ?, plan_id = ?, expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		grant.Tier,
		grant.PlanID,
		grant.ExpiresAt,
		now,
		id,
	).Error
}

func (r *repo) Reset(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET tier = ?, plan_id = NULL, expires_at = NULL, highlight_active = false, updated_at = ?
		 WHERE id = ?`,
		entitlementdomain.TierNone,
		now,
		id,
	).Error
}

func (r *repo) SetHighlight(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE entitlements SET highlight_active = ?, updated_at = ? WHERE id = ?`,
		active,
		now,
		id,
	).Error
}
