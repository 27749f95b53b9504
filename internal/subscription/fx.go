package subscription

import (
	"github.com/conectalocal/vitrina/internal/subscription/repository"
	"github.com/conectalocal/vitrina/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
