package amount

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the closed set of currencies the gateway charges in.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
)

// DefaultCurrency is applied when a request omits the currency.
const DefaultCurrency = CurrencyINR

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
)

// minorExponent is the number of decimal places charged per currency.
var minorExponent = map[Currency]int32{
	CurrencyINR: 2,
	CurrencyUSD: 2,
}

// ParseCurrency normalizes a user supplied currency code. An empty value
// resolves to DefaultCurrency.
func ParseCurrency(raw string) (Currency, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return DefaultCurrency, nil
	}
	currency := Currency(value)
	if !currency.Valid() {
		return "", ErrInvalidCurrency
	}
	return currency, nil
}

func (c Currency) Valid() bool {
	_, ok := minorExponent[c]
	return ok
}

func (c Currency) String() string {
	return string(c)
}

// ToMinorUnits converts a major-unit amount into the integral minor-unit
// amount expected by the gateway, rounding half away from zero.
func ToMinorUnits(value decimal.Decimal, currency Currency) (int64, error) {
	exp, ok := minorExponent[currency]
	if !ok {
		return 0, ErrInvalidCurrency
	}
	if value.IsNegative() {
		return 0, ErrInvalidAmount
	}

	minor := value.Shift(exp).Round(0)
	if !minor.BigInt().IsInt64() {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FromFloat is ToMinorUnits for callers holding a float64. NaN and
// infinities are rejected before any conversion happens.
func FromFloat(value float64, currency Currency) (int64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrInvalidAmount
	}
	return ToMinorUnits(decimal.NewFromFloat(value), currency)
}

// FromMinorUnits renders a minor-unit amount back into a decimal major amount.
func FromMinorUnits(minor int64, currency Currency) decimal.Decimal {
	exp, ok := minorExponent[currency]
	if !ok {
		exp = 2
	}
	return decimal.New(minor, -exp)
}
