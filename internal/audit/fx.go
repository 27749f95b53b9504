package audit

import (
	"github.com/conectalocal/vitrina/internal/audit/repository"
	"github.com/conectalocal/vitrina/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
