package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/clock"
	"github.com/conectalocal/vitrina/internal/config"
	"github.com/conectalocal/vitrina/internal/entitlement"
	"github.com/conectalocal/vitrina/internal/observability"
	"github.com/conectalocal/vitrina/internal/plan"
	"github.com/conectalocal/vitrina/internal/scheduler"
	"github.com/conectalocal/vitrina/internal/subscription"
	"github.com/conectalocal/vitrina/pkg/db"
	"go.uber.org/fx"
)

// Standalone sweep worker. Runs the expiry jobs without the HTTP server,
// for deployments that scale the API and the scheduler separately.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the sweep
		plan.Module,
		entitlement.Module,
		subscription.Module,

		fx.Provide(scheduler.ProvideConfig, scheduler.New),
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go s.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
