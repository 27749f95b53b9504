package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/conectalocal/vitrina/internal/config"
	"github.com/conectalocal/vitrina/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.SeedDefaultPlans {
			if err := seed.EnsureDefaultPlans(conn); err != nil {
				return err
			}
		}
		if cfg.SeedAdminAccountID != 0 {
			return seed.EnsureAdminRole(conn, snowflake.ID(cfg.SeedAdminAccountID))
		}
		return nil
	}),
)
