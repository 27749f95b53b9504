package plan

import (
	"github.com/conectalocal/vitrina/internal/plan/repository"
	"github.com/conectalocal/vitrina/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
