// Package seed installs baseline data so a fresh database is usable
// without manual setup: the standard plan catalog and, optionally, an
// admin role assignment.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	"gorm.io/gorm"
)

type planSeed struct {
	Code          string
	Name          string
	Tier          int
	BillingPeriod plandomain.BillingPeriod
	PriceUSD      float64
}

// defaultPlans is the launch catalog. Codes are stable identifiers;
// prices can be adjusted per row afterwards without reseeding.
var defaultPlans = []planSeed{
	{"conecta_monthly", "Conecta (mensual)", 1, plandomain.BillingPeriodMonthly, 9.99},
	{"conecta_yearly", "Conecta (anual)", 1, plandomain.BillingPeriodYearly, 99.99},
	{"destaca_monthly", "Destaca (mensual)", 2, plandomain.BillingPeriodMonthly, 19.99},
	{"destaca_yearly", "Destaca (anual)", 2, plandomain.BillingPeriodYearly, 199.99},
	{"fundador_monthly", "Fundador (mensual)", 3, plandomain.BillingPeriodMonthly, 39.99},
	{"fundador_yearly", "Fundador (anual)", 3, plandomain.BillingPeriodYearly, 399.99},
}

// EnsureDefaultPlans inserts any catalog plan that does not exist yet.
// Existing rows are left untouched so operator edits survive restarts.
func EnsureDefaultPlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range defaultPlans {
			if err := ensurePlanTx(ctx, tx, node, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, p planSeed) error {
	var existing plandomain.Plan
	err := tx.WithContext(ctx).Where("code = ?", p.Code).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	days, _ := plandomain.DurationDays(p.BillingPeriod)
	now := time.Now().UTC()
	plan := plandomain.Plan{
		ID:            node.Generate(),
		Code:          p.Code,
		Name:          p.Name,
		Tier:          p.Tier,
		BillingPeriod: p.BillingPeriod,
		DurationDays:  days,
		PriceUSD:      p.PriceUSD,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.WithContext(ctx).Create(&plan).Error
}

// EnsureAdminRole grants the admin role to the given account. Used to
// bootstrap the first back-office operator on self-hosted installs.
func EnsureAdminRole(db *gorm.DB, accountID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if accountID == 0 {
		return errors.New("seed admin account id is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Exec(
		`INSERT INTO account_roles (account_id, role, created_at, updated_at)
		 VALUES (?, 'admin', NOW(), NOW())
		 ON CONFLICT (account_id) DO NOTHING`,
		accountID,
	).Error
}
