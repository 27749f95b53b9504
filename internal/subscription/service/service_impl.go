package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/clock"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	"github.com/conectalocal/vitrina/internal/observability/metrics"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	subscriptiondomain "github.com/conectalocal/vitrina/internal/subscription/domain"
	"github.com/conectalocal/vitrina/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchSize = 500

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    subscriptiondomain.Repository
	entRepo entitlementdomain.Repository
	metrics *metrics.Metrics

	plansvc plandomain.Service
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    subscriptiondomain.Repository
	EntRepo entitlementdomain.Repository
	Metrics *metrics.Metrics `optional:"true"`

	Plansvc plandomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		entRepo: p.EntRepo,
		metrics: p.Metrics,

		plansvc: p.Plansvc,
	}
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	filter := subscriptiondomain.ListSubscriptionFilter{}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	switch subscriptiondomain.SubscriptionStatus(status) {
	case "", subscriptiondomain.SubscriptionStatusPending,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusExpired:
		filter.Status = subscriptiondomain.SubscriptionStatus(status)
	default:
		return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidStatus
	}

	if strings.TrimSpace(req.SubjectID) != "" {
		subjectID, err := snowflake.ParseString(strings.TrimSpace(req.SubjectID))
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, entitlementdomain.ErrInvalidSubject
		}
		filter.SubjectID = subjectID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var cursorID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidSubscription
		}
		parsed, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, subscriptiondomain.ErrInvalidSubscription
		}
		cursorID = parsed
	}

	items, err := s.repo.List(ctx, s.db, filter, pageSize+1, cursorID)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, err
	}

	resp := subscriptiondomain.ListSubscriptionResponse{Subscriptions: items}
	if len(items) > pageSize {
		resp.Subscriptions = items[:pageSize]
		resp.HasMore = true
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: resp.Subscriptions[pageSize-1].ID.String(),
		})
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, err
		}
		resp.NextPageToken = token
	}
	return resp, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscription
	}

	subscription, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

// Activate grants one plan period to a subject. An active entitlement
// keeps its remaining time; a lapsed one restarts from now.
func (s *Service) Activate(ctx context.Context, req subscriptiondomain.ActivateRequest) (subscriptiondomain.Subscription, error) {
	subjectType, ok := entitlementdomain.ParseSubjectType(strings.TrimSpace(req.SubjectType))
	if !ok {
		return subscriptiondomain.Subscription{}, entitlementdomain.ErrInvalidSubjectType
	}
	subjectID, err := snowflake.ParseString(strings.TrimSpace(req.SubjectID))
	if err != nil {
		return subscriptiondomain.Subscription{}, entitlementdomain.ErrInvalidSubject
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAccount
	}

	plan, err := s.plansvc.GetByID(ctx, req.PlanID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if !plan.Active {
		return subscriptiondomain.Subscription{}, plandomain.ErrPlanInactive
	}

	var result subscriptiondomain.PaidPeriodResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.ApplyPaidPeriodTx(ctx, tx, subscriptiondomain.PaidPeriodRequest{
			SubjectType: subjectType,
			SubjectID:   subjectID,
			AccountID:   accountID,
			PayerID:     accountID,
			Plan:        plan,
		})
		return txErr
	})
	if err != nil {
		s.metrics.RecordSubscriptionTransition(ctx, "activate", "error")
		return subscriptiondomain.Subscription{}, err
	}

	s.metrics.RecordSubscriptionTransition(ctx, "activate", "success")
	s.log.Info("subscription activated",
		zap.String("subscription_id", result.Subscription.ID.String()),
		zap.String("subject_id", subjectID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.Time("expires_at", result.ExpiresAt),
	)
	return result.Subscription, nil
}

// ApplyPaidPeriodTx implements domain.Service. It must run inside an
// open transaction; the entitlement row lock serializes concurrent
// grants for the same subject.
func (s *Service) ApplyPaidPeriodTx(ctx context.Context, tx *gorm.DB, req subscriptiondomain.PaidPeriodRequest) (subscriptiondomain.PaidPeriodResult, error) {
	now := s.clock.Now()
	durationDays := s.resolveDuration(req.Plan)
	if durationDays <= 0 {
		return subscriptiondomain.PaidPeriodResult{}, subscriptiondomain.ErrInvalidDuration
	}

	entitlement, err := s.entRepo.FindBySubjectForUpdate(ctx, tx, req.SubjectType, req.SubjectID)
	if err != nil {
		return subscriptiondomain.PaidPeriodResult{}, err
	}

	expiresAt := entitlementdomain.ExtendedExpiry(expiryOf(entitlement), durationDays, now)

	if entitlement == nil {
		entitlement = &entitlementdomain.Entitlement{
			ID:          s.genID.Generate(),
			SubjectType: req.SubjectType,
			SubjectID:   req.SubjectID,
			AccountID:   req.AccountID,
			Tier:        req.Plan.Tier,
			PlanID:      &req.Plan.ID,
			ExpiresAt:   &expiresAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.entRepo.Insert(ctx, tx, entitlement); err != nil {
			return subscriptiondomain.PaidPeriodResult{}, err
		}
	} else {
		grant := entitlementdomain.Grant{
			SubjectType: req.SubjectType,
			SubjectID:   req.SubjectID,
			AccountID:   req.AccountID,
			Tier:        req.Plan.Tier,
			PlanID:      req.Plan.ID,
			ExpiresAt:   expiresAt,
		}
		if err := s.entRepo.ApplyGrant(ctx, tx, entitlement.ID, grant, now); err != nil {
			return subscriptiondomain.PaidPeriodResult{}, err
		}
	}

	subscription, err := s.repo.FindActiveBySubjectForUpdate(ctx, tx, req.SubjectType, req.SubjectID, req.PayerID)
	if err != nil {
		return subscriptiondomain.PaidPeriodResult{}, err
	}

	if subscription == nil {
		subscription = &subscriptiondomain.Subscription{
			ID:          s.genID.Generate(),
			SubjectType: req.SubjectType,
			SubjectID:   req.SubjectID,
			AccountID:   req.AccountID,
			PayerID:     req.PayerID,
			PlanID:      req.Plan.ID,
			Status:      subscriptiondomain.SubscriptionStatusActive,
			StartAt:     now,
			EndAt:       expiresAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, subscription); err != nil {
			return subscriptiondomain.PaidPeriodResult{}, err
		}
	} else {
		subscription.PlanID = req.Plan.ID
		subscription.Status = subscriptiondomain.SubscriptionStatusActive
		subscription.EndAt = expiresAt
		subscription.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return subscriptiondomain.PaidPeriodResult{}, err
		}
	}

	return subscriptiondomain.PaidPeriodResult{
		Subscription: *subscription,
		ExpiresAt:    expiresAt,
	}, nil
}

// Extend pushes EndAt forward by additionalDays. Unlike Activate it is
// always additive to the stored end date, even when the subscription
// has already lapsed; the two rules are intentionally distinct.
func (s *Service) Extend(ctx context.Context, req subscriptiondomain.ExtendRequest) (subscriptiondomain.Subscription, error) {
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(req.SubscriptionID))
	if err != nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscription
	}
	if req.AdditionalDays <= 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidDuration
	}

	now := s.clock.Now()
	var updated subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		subscription.EndAt = subscription.EndAt.AddDate(0, 0, req.AdditionalDays)
		subscription.Status = subscriptiondomain.SubscriptionStatusActive
		subscription.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}

		if err := s.mirrorEntitlement(ctx, tx, subscription, now); err != nil {
			return err
		}

		updated = *subscription
		return nil
	})
	if err != nil {
		s.metrics.RecordSubscriptionTransition(ctx, "extend", "error")
		return subscriptiondomain.Subscription{}, err
	}

	s.metrics.RecordSubscriptionTransition(ctx, "extend", "success")
	s.log.Info("subscription extended",
		zap.String("subscription_id", updated.ID.String()),
		zap.Int("additional_days", req.AdditionalDays),
		zap.Time("end_at", updated.EndAt),
	)
	return updated, nil
}

// Deactivate expires a subscription immediately and clears the
// subject's entitlement. Deactivating an already-expired subscription
// succeeds without touching state.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	subscriptionID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return subscriptiondomain.ErrInvalidSubscription
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status == subscriptiondomain.SubscriptionStatusExpired {
			return nil
		}

		if err := s.repo.MarkExpired(ctx, tx, subscription.ID, now, now); err != nil {
			return err
		}

		entitlement, err := s.entRepo.FindBySubjectForUpdate(ctx, tx, subscription.SubjectType, subscription.SubjectID)
		if err != nil {
			return err
		}
		if entitlement == nil {
			return nil
		}
		return s.entRepo.Reset(ctx, tx, entitlement.ID, now)
	})
	if err != nil {
		s.metrics.RecordSubscriptionTransition(ctx, "deactivate", "error")
		return err
	}

	s.metrics.RecordSubscriptionTransition(ctx, "deactivate", "success")
	return nil
}

// ExpireLapsed transitions every active subscription whose end date has
// passed. Entitlements are only downgraded when their own expiry has
// also passed, so a subject extended through another record keeps its
// access.
func (s *Service) ExpireLapsed(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	var total int64

	for {
		var batch int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			due, err := s.repo.FindDueForUpdate(ctx, tx, now, sweepBatchSize)
			if err != nil {
				return err
			}

			for _, subscription := range due {
				if err := s.repo.MarkExpired(ctx, tx, subscription.ID, subscription.EndAt, now); err != nil {
					return err
				}

				entitlement, err := s.entRepo.FindBySubjectForUpdate(ctx, tx, subscription.SubjectType, subscription.SubjectID)
				if err != nil {
					return err
				}
				if entitlement == nil {
					continue
				}
				if entitlement.ExpiresAt != nil && entitlement.ExpiresAt.After(now) {
					continue
				}
				if err := s.entRepo.Reset(ctx, tx, entitlement.ID, now); err != nil {
					return err
				}
			}

			batch = int64(len(due))
			return nil
		})
		if err != nil {
			return total, err
		}

		total += batch
		if batch < sweepBatchSize {
			break
		}
	}

	if total > 0 {
		s.log.Info("lapsed subscriptions expired", zap.Int64("count", total))
	}
	return total, nil
}

func (s *Service) mirrorEntitlement(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription, now time.Time) error {
	entitlement, err := s.entRepo.FindBySubjectForUpdate(ctx, tx, subscription.SubjectType, subscription.SubjectID)
	if err != nil {
		return err
	}

	tier := entitlementdomain.TierConecta
	if plan, err := s.plansvc.GetByID(ctx, subscription.PlanID.String()); err == nil {
		tier = plan.Tier
	}

	if entitlement == nil {
		return s.entRepo.Insert(ctx, tx, &entitlementdomain.Entitlement{
			ID:          s.genID.Generate(),
			SubjectType: subscription.SubjectType,
			SubjectID:   subscription.SubjectID,
			AccountID:   subscription.AccountID,
			Tier:        tier,
			PlanID:      &subscription.PlanID,
			ExpiresAt:   &subscription.EndAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if entitlement.Tier > tier {
		tier = entitlement.Tier
	}
	return s.entRepo.ApplyGrant(ctx, tx, entitlement.ID, entitlementdomain.Grant{
		SubjectType: subscription.SubjectType,
		SubjectID:   subscription.SubjectID,
		AccountID:   subscription.AccountID,
		Tier:        tier,
		PlanID:      subscription.PlanID,
		ExpiresAt:   subscription.EndAt,
	}, now)
}

func (s *Service) resolveDuration(plan plandomain.Plan) int {
	if plan.DurationDays > 0 {
		return plan.DurationDays
	}

	days, recognized := plandomain.DurationDays(plan.BillingPeriod)
	if !recognized {
		// Unknown billing periods fall back to a month; this mirrors
		// the historical leniency rather than rejecting the request.
		s.log.Warn("unrecognized billing period, falling back",
			zap.String("plan_id", plan.ID.String()),
			zap.String("billing_period", string(plan.BillingPeriod)),
			zap.Int("fallback_days", days),
		)
	}
	return days
}

func expiryOf(entitlement *entitlementdomain.Entitlement) *time.Time {
	if entitlement == nil {
		return nil
	}
	return entitlement.ExpiresAt
}
