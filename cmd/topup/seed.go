package main

import (
	"context"

	"github.com/smallbiznis/topup/internal/cache"
	"github.com/smallbiznis/topup/internal/migration"
	"github.com/smallbiznis/topup/internal/product"
	productdomain "github.com/smallbiznis/topup/internal/product/domain"
	"github.com/smallbiznis/topup/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the default coin pack catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(),
				migration.Module,
				cache.Module,
				product.Module,
				fx.Invoke(func(lc fx.Lifecycle, svc productdomain.Service, log *zap.Logger) {
					lc.Append(fx.Hook{
						OnStart: func(ctx context.Context) error {
							products, err := seed.Products(ctx, svc, log.Named("seed"))
							if err != nil {
								return err
							}
							log.Info("catalog seeded", zap.Int("products", len(products)))
							return nil
						},
					})
				}),
			)
		},
	}
}
