package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	productdomain "github.com/smallbiznis/topup/internal/product/domain"
	"go.uber.org/zap"
)

const defaultGameType = "bgmi"

// Catalog is the default coin pack lineup.
func Catalog() []productdomain.UpsertRequest {
	return []productdomain.UpsertRequest{
		pack("Starter Pack", "Perfect for beginners", 500, "499", "5.99", false, "NEW"),
		pack("Popular Pack", "Most bought package", 1200, "999", "11.99", true, "BEST SELLER"),
		pack("Pro Pack", "For serious gamers", 2500, "1999", "23.99", false, "20% OFF"),
		pack("Elite Pack", "Ultimate gaming experience", 5000, "3799", "44.99", false, "BEST VALUE"),
		pack("Ultimate Pack", "Maximum coins", 10000, "6999", "84.99", false, "SAVE 15%"),
	}
}

func pack(name, description string, coins int64, inr, usd string, popular bool, badge string) productdomain.UpsertRequest {
	active := true
	return productdomain.UpsertRequest{
		Name:        name,
		Description: description,
		Coins:       coins,
		PriceINR:    decimal.RequireFromString(inr),
		PriceUSD:    decimal.RequireFromString(usd),
		Popular:     popular,
		Badge:       badge,
		GameType:    defaultGameType,
		Active:      &active,
	}
}

// Products upserts the catalog by code. Existing rows keep their ids so
// historical orders still resolve; products outside the catalog are left alone.
func Products(ctx context.Context, svc productdomain.Service, log *zap.Logger) ([]productdomain.Product, error) {
	if svc == nil {
		return nil, errors.New("seed product service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	catalog := Catalog()
	seeded := make([]productdomain.Product, 0, len(catalog))
	for _, req := range catalog {
		product, err := svc.Upsert(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("seed product %q: %w", req.Name, err)
		}
		seeded = append(seeded, *product)
		log.Info("seeded product",
			zap.Int64("product_id", product.ID),
			zap.String("code", product.Code),
			zap.Int64("coins", product.Coins),
		)
	}
	return seeded, nil
}
