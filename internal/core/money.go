// Package core provides amount coercion and display helpers.
//
// Amounts are stored as float64 exactly as entered. Rounding only happens
// when an amount is shown to a user.
package core

import (
	"math"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used for display when no currency code is configured.
const DefaultCurrency = money.USD

// ParseAmount coerces a raw form value to a float64.
//
// It accepts surrounding spaces and a single decimal comma ("12,50").
// NaN, infinities and non-numeric text are rejected with ErrInvalidAmount.
// The sign is not checked here; callers decide whether zero is acceptable.
//
// Examples:
//
//	ParseAmount("12.5")   -> 12.5, nil
//	ParseAmount(" 12,50") -> 12.5, nil
//	ParseAmount("abc")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// FormatAmount renders an amount as a plain two-decimal string, half-up.
func FormatAmount(v float64) string {
	return Round2(v).StringFixed(2)
}

// Round2 rounds the stored binary value of v half-up to cents, so 1.005
// (stored as 1.00499...) shows as 1.00.
func Round2(v float64) decimal.Decimal {
	return exact(v).Round(2)
}

// exact is v's binary value to 40 places. Non-finite values are zero.
func exact(v float64) decimal.Decimal {
	d, err := decimal.NewFromString(strconv.FormatFloat(v, 'f', 40, 64))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// DisplayMoney renders v in the given ISO currency, e.g. "$33.33".
// Unknown currency codes fall back to FormatAmount.
func DisplayMoney(v float64, currency string) string {
	cur := money.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return FormatAmount(v)
	}
	amount := exact(v).Round(int32(cur.Fraction))
	factor, _ := decimal.NewFromInt(10).PowInt32(int32(cur.Fraction))
	return money.New(amount.Mul(factor).IntPart(), cur.Code).Display()
}
