package service

import (
	"context"
	"testing"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/exchange"
)

func resolveWith(t *testing.T, symbols []string, kraken, binance exchange.MarketCatalog, fiats ...string) *Resolution {
	t.Helper()

	store := &fakeOrderStore{}
	for i, s := range symbols {
		o := syncOrder(string(rune('A'+i)), s, time.Now())
		store.orders = append(store.orders, o)
	}
	if len(fiats) == 0 {
		fiats = []string{"USD", "EUR"}
	}

	r := NewMarketResolver(store, []exchange.Adapter{
		&fakeAdapter{id: domain.ExchangeKraken, caps: []exchange.Capability{exchange.CapabilityOHLCV}, catalog: kraken},
		&fakeAdapter{id: domain.ExchangeBinance, caps: []exchange.Capability{exchange.CapabilityOHLCV}, catalog: binance},
	}, fiats)

	res, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return res
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestResolver_DirectPairs(t *testing.T) {
	// Traded quotes: EUR (from ETH/EUR) and BTC (from ADA/BTC).
	res := resolveWith(t, []string{"ETH/EUR", "ADA/BTC"},
		catalogOf("BTC/EUR", "BTC/USD"),
		catalogOf("BTC/EUR"),
	)

	// EUR needs a path to BTC: BTC/EUR exists on kraken (priority 1).
	if !contains(res.CryptoPairs[domain.ExchangeKraken], "BTC/EUR") {
		t.Errorf("BTC/EUR missing from kraken pairs: %+v", res.CryptoPairs)
	}
	if contains(res.CryptoPairs[domain.ExchangeBinance], "BTC/EUR") {
		t.Error("BTC/EUR resolved on binance despite kraken priority")
	}

	// EUR is fiat: its fiat-reference pairs come from the rate source.
	if !contains(res.FiatPairs, "EUR/USD") {
		t.Errorf("EUR/USD missing from fiat pairs: %v", res.FiatPairs)
	}

	// BTC itself needs no crypto-reference pair.
	for _, pairs := range res.CryptoPairs {
		if contains(pairs, "BTC/BTC") {
			t.Error("crypto reference must be skipped for itself")
		}
	}
	if len(res.Failed) != 0 || len(res.UnsupportedCryptoRef) != 0 {
		t.Errorf("unexpected failures: %+v", res)
	}
}

func TestResolver_ProxyChain(t *testing.T) {
	// LINK/EUR has no direct market, but LINK/USD exists on binance and
	// USD/EUR is fiat/fiat: pair resolves through the two-hop USD proxy.
	res := resolveWith(t, []string{"ADA/LINK"},
		catalogOf("LINK/BTC"),
		catalogOf("LINK/USD"),
	)

	if contains(res.Failed, "LINK/EUR") {
		t.Fatal("proxy-resolvable pair landed in the hard-failure list")
	}

	var chain *ProxyChain
	for i := range res.ProxyChains {
		if res.ProxyChains[i].Pair == "LINK/EUR" {
			chain = &res.ProxyChains[i]
		}
	}
	if chain == nil {
		t.Fatalf("LINK/EUR not proxy-resolved: %+v", res)
	}
	if chain.Legs[0].Pair != "LINK/USD" || chain.Legs[0].Exchange != domain.ExchangeBinance {
		t.Errorf("first leg = %+v, want LINK/USD on binance", chain.Legs[0])
	}
	if chain.Legs[1].Pair != "USD/EUR" || !chain.Legs[1].Fiat {
		t.Errorf("second leg = %+v, want fiat USD/EUR", chain.Legs[1])
	}

	// The crypto leg is also scheduled for ingestion.
	if !contains(res.CryptoPairs[domain.ExchangeBinance], "LINK/USD") {
		t.Errorf("proxy crypto leg missing from binance pairs: %+v", res.CryptoPairs)
	}
}

func TestResolver_HardFailure(t *testing.T) {
	// XMR has no fiat market anywhere, and no XMR/USD proxy leg either:
	// the pair must land in Failed and in no other list.
	res := resolveWith(t, []string{"ADA/XMR"},
		catalogOf("XMR/BTC"),
		catalogOf(),
	)

	if !contains(res.Failed, "XMR/USD") || !contains(res.Failed, "XMR/EUR") {
		t.Fatalf("XMR fiat pairs not in hard-failure list: %+v", res.Failed)
	}
	for ex, pairs := range res.CryptoPairs {
		if contains(pairs, "XMR/USD") || contains(pairs, "XMR/EUR") {
			t.Errorf("failed pair leaked into %s pairs: %v", ex, pairs)
		}
	}
	for _, chain := range res.ProxyChains {
		if chain.Pair == "XMR/USD" || chain.Pair == "XMR/EUR" {
			t.Errorf("failed pair leaked into proxy chains: %+v", chain)
		}
	}

	// The crypto-reference pair still resolves via the kraken catalog.
	if !contains(res.CryptoPairs[domain.ExchangeKraken], "XMR/BTC") {
		t.Errorf("XMR/BTC missing: %+v", res.CryptoPairs)
	}
}

func TestResolver_UnsupportedCryptoReference(t *testing.T) {
	res := resolveWith(t, []string{"ADA/OBSCURE"},
		catalogOf(),
		catalogOf(),
	)
	if !contains(res.UnsupportedCryptoRef, "OBSCURE") {
		t.Errorf("OBSCURE not reported as unsupported vs crypto reference: %+v", res)
	}
}

func TestResolver_ReverseOrderingAccepted(t *testing.T) {
	// Only the reverse ordering BTC/EUR is listed; step 1 must accept it.
	res := resolveWith(t, []string{"ETH/EUR"},
		catalogOf("BTC/EUR"),
		catalogOf(),
	)
	if !contains(res.CryptoPairs[domain.ExchangeKraken], "BTC/EUR") {
		t.Errorf("reverse ordering not matched: %+v", res.CryptoPairs)
	}
}

func TestResolver_Deduplicates(t *testing.T) {
	// BTC/EUR is demanded twice: as EUR's crypto-reference pair and as
	// BTC's direct EUR pricing pair. It must appear once.
	res := resolveWith(t, []string{"ETH/EUR", "ADA/BTC"},
		catalogOf("BTC/EUR", "BTC/USD"),
		catalogOf(),
	)
	count := 0
	for _, p := range res.CryptoPairs[domain.ExchangeKraken] {
		if p == "BTC/EUR" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("BTC/EUR appears %d times, want 1", count)
	}
}
