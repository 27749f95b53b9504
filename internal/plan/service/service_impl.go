package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/clock"
	plandomain "github.com/conectalocal/vitrina/internal/plan/domain"
	"github.com/conectalocal/vitrina/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  plandomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  plandomain.Repository
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("plan.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req plandomain.ListPlanRequest) ([]plandomain.Plan, error) {
	return s.repo.List(ctx, s.db, req.IncludeInactive)
}

func (s *Service) GetByID(ctx context.Context, id string) (plandomain.Plan, error) {
	planID, err := parseID(id)
	if err != nil {
		return plandomain.Plan{}, plandomain.ErrInvalidPlan
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return plandomain.Plan{}, err
	}
	if plan == nil {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) Create(ctx context.Context, req plandomain.CreatePlanRequest) (plandomain.Plan, error) {
	code := strings.ToLower(strings.TrimSpace(req.Code))
	if code == "" {
		return plandomain.Plan{}, plandomain.ErrInvalidPlanCode
	}
	if req.Tier < 1 {
		return plandomain.Plan{}, plandomain.ErrInvalidTier
	}
	if req.PriceUSD < 0 {
		return plandomain.Plan{}, plandomain.ErrInvalidPrice
	}

	durationDays, recognized := plandomain.DurationDays(req.BillingPeriod)
	if !recognized {
		return plandomain.Plan{}, plandomain.ErrInvalidBillingPeriod
	}

	now := s.clock.Now()
	plan := plandomain.Plan{
		ID:            s.genID.Generate(),
		Code:          code,
		Name:          strings.TrimSpace(req.Name),
		Tier:          req.Tier,
		BillingPeriod: req.BillingPeriod,
		DurationDays:  durationDays,
		PriceUSD:      req.PriceUSD,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if plan.Name == "" {
		plan.Name = code
	}

	if err := s.repo.Insert(ctx, s.db, &plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return plandomain.Plan{}, plandomain.ErrPlanCodeExists
		}
		return plandomain.Plan{}, err
	}

	s.log.Info("plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("code", plan.Code),
		zap.Int("tier", plan.Tier),
	)
	return plan, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) error {
	planID, err := parseID(id)
	if err != nil {
		return plandomain.ErrInvalidPlan
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return err
	}
	if plan == nil {
		return plandomain.ErrPlanNotFound
	}
	if !plan.Active {
		return nil
	}

	return s.repo.SetActive(ctx, s.db, planID, false)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
