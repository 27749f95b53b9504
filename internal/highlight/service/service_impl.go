package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/authorization"
	"github.com/conectalocal/vitrina/internal/clock"
	"github.com/conectalocal/vitrina/internal/config"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	highlightdomain "github.com/conectalocal/vitrina/internal/highlight/domain"
	"github.com/conectalocal/vitrina/internal/observability/metrics"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock      clock.Clock
	entRepo    entitlementdomain.Repository
	plansvc    plandomain.Service
	membership *config.MembershipConfigHolder
	authz      authorization.Service
	metrics    *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	EntRepo    entitlementdomain.Repository
	Plansvc    plandomain.Service
	Membership *config.MembershipConfigHolder
	Authz      authorization.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) highlightdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("highlight.service"),

		clock:      p.Clock,
		entRepo:    p.EntRepo,
		plansvc:    p.Plansvc,
		membership: p.Membership,
		authz:      p.Authz,
		metrics:    p.Metrics,
	}
}

// Toggle flips the highlight perk for a subject. Turning it off always
// succeeds, even on a lapsed membership. Turning it on requires an
// active membership and a free slot under the owning account; the
// account's rows are locked so two concurrent toggles cannot both win
// the last slot.
func (s *Service) Toggle(ctx context.Context, req highlightdomain.ToggleRequest) (entitlementdomain.Entitlement, error) {
	subjectType, ok := entitlementdomain.ParseSubjectType(strings.TrimSpace(req.SubjectType))
	if !ok {
		return entitlementdomain.Entitlement{}, entitlementdomain.ErrInvalidSubjectType
	}
	subjectID, err := snowflake.ParseString(strings.TrimSpace(req.SubjectID))
	if err != nil {
		return entitlementdomain.Entitlement{}, entitlementdomain.ErrInvalidSubject
	}

	if req.Active {
		return s.toggleOn(ctx, subjectType, subjectID, req.Caller)
	}
	return s.toggleOff(ctx, subjectType, subjectID, req.Caller)
}

func (s *Service) toggleOff(ctx context.Context, subjectType entitlementdomain.SubjectType, subjectID snowflake.ID, caller string) (entitlementdomain.Entitlement, error) {
	now := s.clock.Now()
	var result entitlementdomain.Entitlement

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ent, err := s.entRepo.FindBySubjectForUpdate(ctx, tx, subjectType, subjectID)
		if err != nil {
			return err
		}
		if ent == nil {
			return entitlementdomain.ErrEntitlementNotFound
		}
		if err := s.authorizeCaller(ctx, caller, ent.AccountID); err != nil {
			return err
		}

		if !ent.HighlightActive {
			result = *ent
			return nil
		}
		if err := s.entRepo.SetHighlight(ctx, tx, ent.ID, false, now); err != nil {
			return err
		}
		result = *ent
		result.HighlightActive = false
		return nil
	})
	if err != nil {
		return entitlementdomain.Entitlement{}, err
	}

	s.metrics.RecordHighlightToggle(ctx, "off")
	s.log.Info("highlight disabled",
		zap.String("subject_type", string(subjectType)),
		zap.String("subject_id", subjectID.String()),
	)
	return result, nil
}

func (s *Service) toggleOn(ctx context.Context, subjectType entitlementdomain.SubjectType, subjectID snowflake.ID, caller string) (entitlementdomain.Entitlement, error) {
	now := s.clock.Now()

	target, err := s.entRepo.FindBySubject(ctx, s.db, subjectType, subjectID)
	if err != nil {
		return entitlementdomain.Entitlement{}, err
	}
	if target == nil {
		return entitlementdomain.Entitlement{}, entitlementdomain.ErrEntitlementNotFound
	}

	var result entitlementdomain.Entitlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.entRepo.FindByAccountForUpdate(ctx, tx, target.AccountID)
		if err != nil {
			return err
		}

		var ent *entitlementdomain.Entitlement
		for i := range rows {
			if rows[i].SubjectType == subjectType && rows[i].SubjectID == subjectID {
				ent = &rows[i]
				break
			}
		}
		if ent == nil {
			return entitlementdomain.ErrEntitlementNotFound
		}
		if err := s.authorizeCaller(ctx, caller, ent.AccountID); err != nil {
			return err
		}
		if !ent.Active(now) {
			return highlightdomain.ErrNoActiveMembership
		}

		if ent.HighlightActive {
			result = *ent
			return nil
		}

		limit, err := s.accountSlotLimit(ctx, rows, now)
		if err != nil {
			return err
		}

		active := 0
		for _, row := range rows {
			if row.HighlightActive && row.Active(now) {
				active++
			}
		}
		if active >= limit {
			return &highlightdomain.LimitError{Limit: limit, Active: active}
		}

		if err := s.entRepo.SetHighlight(ctx, tx, ent.ID, true, now); err != nil {
			return err
		}
		result = *ent
		result.HighlightActive = true
		return nil
	})
	if err != nil {
		if limitErr, ok := err.(*highlightdomain.LimitError); ok {
			s.metrics.RecordHighlightToggle(ctx, "limit_reached")
			s.log.Info("highlight slot limit reached",
				zap.String("subject_id", subjectID.String()),
				zap.Int("limit", limitErr.Limit),
				zap.Int("active", limitErr.Active),
			)
		}
		return entitlementdomain.Entitlement{}, err
	}

	s.metrics.RecordHighlightToggle(ctx, "on")
	s.log.Info("highlight enabled",
		zap.String("subject_type", string(subjectType)),
		zap.String("subject_id", subjectID.String()),
	)
	return result, nil
}

// accountSlotLimit derives the account's concurrent highlight slots
// from the best billing period across its active memberships. A yearly
// plan anywhere under the account grants both slots, even when the
// toggled subject sits on a monthly plan. Lapsed rows do not count.
func (s *Service) accountSlotLimit(ctx context.Context, rows []entitlementdomain.Entitlement, now time.Time) (int, error) {
	cfg := s.membership.Get()
	limit := 0
	for i := range rows {
		if !rows[i].Active(now) || rows[i].PlanID == nil {
			continue
		}
		plan, err := s.plansvc.GetByID(ctx, rows[i].PlanID.String())
		if err != nil {
			return 0, err
		}
		if l := cfg.HighlightLimit(string(plan.BillingPeriod)); l > limit {
			limit = l
		}
	}
	if limit == 0 {
		return 0, highlightdomain.ErrNoActiveMembership
	}
	return limit, nil
}

func (s *Service) authorizeCaller(ctx context.Context, caller string, ownerID snowflake.ID) error {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return authorization.ErrUnauthorized
	}
	if callerID, err := snowflake.ParseString(caller); err == nil && callerID == ownerID {
		return nil
	}
	if s.authz.IsAdmin(ctx, "account:"+caller) {
		return nil
	}
	return authorization.ErrForbidden
}
