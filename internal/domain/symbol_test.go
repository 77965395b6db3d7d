package domain

import (
	"errors"
	"testing"
)

func TestParseSymbol(t *testing.T) {
	ts, err := ParseSymbol("ETH/EUR")
	if err != nil {
		t.Fatalf("ParseSymbol failed: %v", err)
	}
	if ts.Base != "ETH" || ts.Quote != "EUR" || ts.Currency != "EUR" {
		t.Errorf("got %+v, want base=ETH quote=EUR currency=EUR", ts)
	}
}

func TestParseSymbol_Invalid(t *testing.T) {
	invalid := []string{"", "ETHEUR", "ETH/EUR/USD", "/EUR", "ETH/", "/"}
	for _, sym := range invalid {
		if _, err := ParseSymbol(sym); !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("ParseSymbol(%q) = %v, want ErrInvalidSymbol", sym, err)
		}
	}
}

func TestMakeSymbol(t *testing.T) {
	if got := MakeSymbol("BTC", "USD"); got != "BTC/USD" {
		t.Errorf("MakeSymbol = %s, want BTC/USD", got)
	}
}
