package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/campusdesk/campusdesk-backend/pkg/config"
	"github.com/campusdesk/campusdesk-backend/pkg/db"
	"github.com/campusdesk/campusdesk-backend/pkg/db/models"
	"github.com/campusdesk/campusdesk-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. SQLite databases are built from the GORM models
// because the goose migrations use Postgres-only types.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	conn := client.DB()
	meta := map[string]any{"env": cfg.App.Env, "dialect": conn.Dialector.Name()}
	ctx = logg.WithFields(ctx, meta)

	if conn.Dialector.Name() == db.DriverSQLite {
		logg.Info(ctx, "auto-migrating sqlite schema (dev auto-run)")
		return AutoMigrateModels(conn)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "running Goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// AutoMigrateModels creates the licensing schema through GORM and applies the
// single-current-license index.
func AutoMigrateModels(conn *gorm.DB) error {
	if err := conn.AutoMigrate(models.Schema()...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	if err := conn.Exec(models.CurrentLicenseIndexSQL).Error; err != nil {
		return fmt.Errorf("create current license index: %w", err)
	}
	return nil
}
