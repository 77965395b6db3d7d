package domain

import (
	"fmt"
	"strings"
)

// TickerSymbols is the parsed form of a "BASE/QUOTE" trading-pair symbol.
// Currency is the quote side by convention.
type TickerSymbols struct {
	Base     string
	Quote    string
	Currency string
}

// ParseSymbol splits a trading-pair symbol into its base and quote parts.
// The symbol must contain exactly one "/" with non-empty sides.
func ParseSymbol(symbol string) (TickerSymbols, error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TickerSymbols{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return TickerSymbols{
		Base:     parts[0],
		Quote:    parts[1],
		Currency: parts[1],
	}, nil
}

// MakeSymbol joins base and quote into canonical "BASE/QUOTE" form.
func MakeSymbol(base, quote string) string {
	return base + "/" + quote
}
