package payment

import (
	"github.com/conectalocal/vitrina/internal/payment/repository"
	"github.com/conectalocal/vitrina/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
