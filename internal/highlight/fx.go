package highlight

import (
	"github.com/conectalocal/vitrina/internal/highlight/service"
	"go.uber.org/fx"
)

var Module = fx.Module("highlight.service",
	fx.Provide(service.NewService),
)
