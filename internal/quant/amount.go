// Package quant provides fixed-precision decimal helpers for monetary values.
// Every derived monetary computation in the system goes through this package
// so that rounding behavior stays in one place.
package quant

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept on every derived amount.
// Raw exchange-reported values are stored as received; only values we
// compute ourselves are rounded.
const Scale = 8

// Round truncates d to Scale fractional digits using half-up rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Cost derives the total cost of a fill: price * filled, rounded to Scale.
// Exchange-supplied cost fields are never trusted when price and filled are
// independently known, so that the invariant cost == round(price*filled)
// holds regardless of the exchange's own rounding.
func Cost(price, filled decimal.Decimal) decimal.Decimal {
	return Round(price.Mul(filled))
}

// Parse converts an exchange-supplied numeric string into a Decimal.
// Empty strings map to zero since several exchanges omit optional
// monetary fields instead of sending "0".
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for trusted, test-local literals. Panics on bad input.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
