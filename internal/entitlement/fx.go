package entitlement

import (
	"github.com/conectalocal/vitrina/internal/entitlement/repository"
	"github.com/conectalocal/vitrina/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
