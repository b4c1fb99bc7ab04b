package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Service interface {
	// Get resolves a purchasable product by snowflake id or code.
	// Missing and inactive products both return ErrNotFound.
	Get(ctx context.Context, ref string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
	Upsert(ctx context.Context, req UpsertRequest) (*Product, error)
}

type UpsertRequest struct {
	Code        string
	Name        string
	Description string
	Coins       int64
	PriceINR    decimal.Decimal
	PriceUSD    decimal.Decimal
	Popular     bool
	Badge       string
	ImageURL    string
	GameType    string
	Active      *bool
}

var (
	ErrNotFound        = errors.New("not_found")
	ErrInvalidID       = errors.New("invalid_product_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCoins    = errors.New("invalid_coins")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidGameType = errors.New("invalid_game_type")
)
