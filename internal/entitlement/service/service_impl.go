package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/conectalocal/vitrina/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	repo entitlementdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo entitlementdomain.Repository
}

func NewService(p ServiceParam) entitlementdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("entitlement.service"),

		repo: p.Repo,
	}
}

func (s *Service) GetBySubject(ctx context.Context, req entitlementdomain.GetEntitlementRequest) (entitlementdomain.Entitlement, error) {
	subjectType, ok := entitlementdomain.ParseSubjectType(strings.TrimSpace(req.SubjectType))
	if !ok {
		return entitlementdomain.Entitlement{}, entitlementdomain.ErrInvalidSubjectType
	}

	subjectID, err := snowflake.ParseString(strings.TrimSpace(req.SubjectID))
	if err != nil {
		return entitlementdomain.Entitlement{}, entitlementdomain.ErrInvalidSubject
	}

	entitlement, err := s.repo.FindBySubject(ctx, s.db, subjectType, subjectID)
	if err != nil {
		return entitlementdomain.Entitlement{}, err
	}
	if entitlement == nil {
		return entitlementdomain.Entitlement{}, entitlementdomain.ErrEntitlementNotFound
	}

	return *entitlement, nil
}
