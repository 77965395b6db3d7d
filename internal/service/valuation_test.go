package service

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/quant"
)

func TestValuation_LatestTickerWins(t *testing.T) {
	v := NewValuation(&fakeRates{})

	v.ProcessTickers([]domain.Ticker{
		{Symbol: "BTC/USD", Price: quant.MustParse("42000"), Exchange: domain.ExchangeKraken},
	})
	v.ProcessTickers([]domain.Ticker{
		{Symbol: "BTC/USD", Price: quant.MustParse("42100"), Exchange: domain.ExchangeKraken},
	})

	got, ok := v.Latest("BTC/USD")
	if !ok {
		t.Fatal("ticker should exist")
	}
	if !got.Price.Equal(quant.MustParse("42100")) {
		t.Errorf("price = %s, want the newest 42100", got.Price)
	}
}

func TestValuation_LatestInFiat(t *testing.T) {
	rates := &fakeRates{rates: map[string]decimal.Decimal{
		"USD/EUR": quant.MustParse("0.92"),
	}}
	v := NewValuation(rates)
	v.ProcessTickers([]domain.Ticker{
		{Symbol: "BTC/USD", Price: quant.MustParse("40000"), Exchange: domain.ExchangeKraken},
	})

	// Same fiat: no conversion.
	if p, ok := v.LatestInFiat("BTC/USD", "USD"); !ok || !p.Equal(quant.MustParse("40000")) {
		t.Errorf("USD price = %s ok=%v, want 40000", p, ok)
	}

	// Cross fiat: quote converted through the rate provider.
	if p, ok := v.LatestInFiat("BTC/USD", "EUR"); !ok || !p.Equal(quant.MustParse("36800")) {
		t.Errorf("EUR price = %s ok=%v, want 36800", p, ok)
	}

	// Missing rate: reported, not guessed.
	if _, ok := v.LatestInFiat("BTC/USD", "JPY"); ok {
		t.Error("missing rate must return ok=false")
	}

	// Unknown symbol.
	if _, ok := v.LatestInFiat("ETH/USD", "EUR"); ok {
		t.Error("unknown symbol must return ok=false")
	}
}

func TestValuation_Symbols(t *testing.T) {
	v := NewValuation(&fakeRates{})
	v.ProcessTickers([]domain.Ticker{
		{Symbol: "ETH/EUR"},
		{Symbol: "BTC/USD"},
	})
	syms := v.Symbols()
	if len(syms) != 2 || syms[0] != "BTC/USD" || syms[1] != "ETH/EUR" {
		t.Errorf("symbols = %v, want sorted [BTC/USD ETH/EUR]", syms)
	}
}
