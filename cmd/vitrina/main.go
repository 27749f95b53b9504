package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/audit"
	"github.com/conectalocal/vitrina/internal/authorization"
	"github.com/conectalocal/vitrina/internal/clock"
	"github.com/conectalocal/vitrina/internal/config"
	"github.com/conectalocal/vitrina/internal/entitlement"
	"github.com/conectalocal/vitrina/internal/highlight"
	"github.com/conectalocal/vitrina/internal/migration"
	"github.com/conectalocal/vitrina/internal/observability"
	"github.com/conectalocal/vitrina/internal/payment"
	"github.com/conectalocal/vitrina/internal/plan"
	providerspayment "github.com/conectalocal/vitrina/internal/providers/payment"
	"github.com/conectalocal/vitrina/internal/ratelimit"
	"github.com/conectalocal/vitrina/internal/scheduler"
	"github.com/conectalocal/vitrina/internal/server"
	"github.com/conectalocal/vitrina/internal/subscription"
	"github.com/conectalocal/vitrina/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		authorization.Module,
		ratelimit.Module,

		// Functional domains
		plan.Module,
		entitlement.Module,
		subscription.Module,
		providerspayment.Module,
		payment.Module,
		highlight.Module,
		audit.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
