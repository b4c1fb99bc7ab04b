package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/topup/internal/payment/amount"
)

// Product is a purchasable coin pack.
type Product struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	Code        string          `json:"code" gorm:"size:128;not null;uniqueIndex:ux_products_code"`
	Name        string          `json:"name" gorm:"type:text;not null"`
	Description *string         `json:"description,omitempty" gorm:"type:text"`
	Coins       int64           `json:"coins" gorm:"not null"`
	PriceINR    decimal.Decimal `json:"price_inr" gorm:"column:price_inr;type:numeric(12,2);not null"`
	PriceUSD    decimal.Decimal `json:"price_usd" gorm:"column:price_usd;type:numeric(12,2);not null"`
	Popular     bool            `json:"popular" gorm:"not null"`
	Badge       *string         `json:"badge,omitempty" gorm:"type:text"`
	ImageURL    *string         `json:"image_url,omitempty" gorm:"column:image_url;type:text"`
	GameType    string          `json:"game_type" gorm:"size:32;not null"`
	Active      bool            `json:"active" gorm:"not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Price returns the list price in the given currency.
func (p Product) Price(currency amount.Currency) (decimal.Decimal, error) {
	switch currency {
	case amount.CurrencyINR:
		return p.PriceINR, nil
	case amount.CurrencyUSD:
		return p.PriceUSD, nil
	default:
		return decimal.Zero, amount.ErrInvalidCurrency
	}
}

var gameTypes = map[string]bool{
	"bgmi":     true,
	"freefire": true,
	"valorant": true,
	"cod":      true,
}

func ValidGameType(v string) bool {
	return gameTypes[v]
}
