package amount

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		name     string
		value    string
		currency Currency
		want     int64
	}{
		{name: "whole rupees", value: "499", currency: CurrencyINR, want: 49900},
		{name: "dollars with cents", value: "23.99", currency: CurrencyUSD, want: 2399},
		{name: "zero", value: "0", currency: CurrencyINR, want: 0},
		{name: "half rounds away from zero", value: "0.005", currency: CurrencyUSD, want: 1},
		{name: "below half rounds down", value: "10.004", currency: CurrencyUSD, want: 1000},
		{name: "large pack", value: "6999", currency: CurrencyINR, want: 699900},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToMinorUnits(decimal.RequireFromString(tc.value), tc.currency)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestToMinorUnitsRejectsInvalidInput(t *testing.T) {
	if _, err := ToMinorUnits(decimal.RequireFromString("-1"), CurrencyINR); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative input, got %v", err)
	}
	if _, err := ToMinorUnits(decimal.RequireFromString("1"), Currency("EUR")); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestFromFloat(t *testing.T) {
	got, err := FromFloat(23.99, CurrencyUSD)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2399 {
		t.Fatalf("expected 2399, got %d", got)
	}

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.5} {
		if _, err := FromFloat(v, CurrencyINR); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for %v, got %v", v, err)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	got, err := ParseCurrency("")
	if err != nil || got != CurrencyINR {
		t.Fatalf("expected default INR, got %q err=%v", got, err)
	}
	got, err = ParseCurrency(" usd ")
	if err != nil || got != CurrencyUSD {
		t.Fatalf("expected USD, got %q err=%v", got, err)
	}
	if _, err := ParseCurrency("jpy"); !errors.Is(err, ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestFromMinorUnits(t *testing.T) {
	if got := FromMinorUnits(2399, CurrencyUSD); !got.Equal(decimal.RequireFromString("23.99")) {
		t.Fatalf("expected 23.99, got %s", got)
	}
}
