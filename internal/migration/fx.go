package migration

import (
	"context"

	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/config"
	ledgerdomain "github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/ledger/domain"
	"github.com/DarshanH2005/Aipasta-AiModels-Playground-sub002/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger, ledgerSvc ledgerdomain.Service) error {
		if cfg.RunMigrations && cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if err := seed.EnsureDefaultPlans(conn); err != nil {
			return err
		}

		if cfg.RunLegacyMigration {
			migrated, err := ledgerSvc.MigrateLegacyCredits(context.Background(), 100)
			if err != nil {
				return err
			}
			log.Info("legacy credit migration finished", zap.Int("migrated", migrated))
		}
		return nil
	}),
)
