package migration

import (
	auditdomain "github.com/adsboard/adsboard/internal/audit/domain"
	"github.com/adsboard/adsboard/internal/config"
	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite deployments (and tests) lean on gorm's schema sync.
			return conn.AutoMigrate(
				&credentialdomain.Credential{},
				&credentialdomain.OAuthState{},
				&auditdomain.Event{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
