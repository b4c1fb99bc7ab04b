package seed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/topup/internal/cache"
	"github.com/smallbiznis/topup/internal/clock"
	"github.com/smallbiznis/topup/internal/config"
	"github.com/smallbiznis/topup/internal/migration"
	"github.com/smallbiznis/topup/internal/product/repository"
	"github.com/smallbiznis/topup/internal/product/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestProductsSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:seed_%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Cache: cache.NewProductCache(config.Config{}, nil, zap.NewNop()),
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
	})

	first, err := Products(ctx, svc, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, first, 5)

	second, err := Products(ctx, svc, nil)
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, first[i].Code)
	}

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 5)
	assert.Equal(t, "starter-pack", listed[0].Code)
	assert.Equal(t, "ultimate-pack", listed[4].Code)

	popular, err := svc.Get(ctx, "popular-pack")
	require.NoError(t, err)
	assert.True(t, popular.Popular)
	assert.Equal(t, int64(1200), popular.Coins)
	assert.True(t, popular.PriceUSD.Equal(decimal.RequireFromString("11.99")))
}

func TestCatalogPrices(t *testing.T) {
	for _, p := range Catalog() {
		assert.True(t, p.PriceINR.IsPositive(), p.Name)
		assert.True(t, p.PriceUSD.IsPositive(), p.Name)
		assert.Equal(t, defaultGameType, p.GameType)
		require.NotNil(t, p.Active)
		assert.True(t, *p.Active)
	}
	_, err := Products(context.Background(), nil, nil)
	assert.Error(t, err)
}
