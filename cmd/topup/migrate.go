package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/topup/internal/config"
	"github.com/smallbiznis/topup/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const oneShotTimeout = 2 * time.Minute

func migrateCmd() *cobra.Command {
	var rollback int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Long: `Apply database schema migrations and exit.

Postgres uses the embedded versioned migrations. sqlite and mysql are
created from the models.

Examples:
  topup migrate
  topup migrate --rollback 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg config.Config, log *zap.Logger) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						if rollback > 0 {
							return rollbackMigrations(conn, cfg, rollback, log)
						}
						if err := migration.Run(conn, cfg.DBType); err != nil {
							return err
						}
						log.Info("database schema up to date", zap.String("type", cfg.DBType))
						return nil
					},
				})
			}))
		},
	}

	cmd.Flags().IntVar(&rollback, "rollback", 0, "revert this many migrations (postgres only)")
	return cmd
}

func rollbackMigrations(conn *gorm.DB, cfg config.Config, steps int, log *zap.Logger) error {
	if !strings.EqualFold(cfg.DBType, "postgres") {
		return errors.New("rollback is only supported on postgres")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := migration.Rollback(sqlDB, steps); err != nil {
		return err
	}
	log.Info("migrations rolled back", zap.Int("steps", steps))
	return nil
}

// runOnce starts an app with the core modules plus opts, letting OnStart
// hooks do the work, then stops it.
func runOnce(parent context.Context, opts ...fx.Option) error {
	if parent == nil {
		parent = context.Background()
	}
	app := fx.New(append([]fx.Option{coreModules()}, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(parent, oneShotTimeout)
	defer cancel()
	startErr := app.Start(startCtx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	stopErr := app.Stop(stopCtx)

	return errors.Join(startErr, stopErr)
}
