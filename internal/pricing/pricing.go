// Package pricing normalizes marketplace price strings and applies
// marketplace fees.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SteamFee is the share of a Steam Market sale kept by Steam.
var SteamFee = decimal.RequireFromString("0.15")

// currencyTokens are stripped before parsing. Longer tokens come first so
// "US$" and "R$" are removed before the bare "$".
var currencyTokens = []string{"US$", "R$", "USD", "BRL", "$", "€", "£", "¥"}

// Parse converts strings such as "$1,234.56", "R$ 12,50" or "12,50€" into a
// decimal rounded to two places. ok is false for empty or unparseable input.
func Parse(raw string) (value decimal.Decimal, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.Join(strings.Fields(s), "")

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		s = strings.ReplaceAll(s, ",", "")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}
	if s == "" {
		return decimal.Decimal{}, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d.Round(2), true
}

// ParsePositive is Parse restricted to strictly positive values.
func ParsePositive(raw string) (decimal.Decimal, bool) {
	d, ok := Parse(raw)
	if !ok || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// NetOfFee returns gross minus fee, rounded half-up to cents.
func NetOfFee(gross, fee decimal.Decimal) decimal.Decimal {
	return gross.Mul(decimal.NewFromInt(1).Sub(fee)).Round(2)
}
