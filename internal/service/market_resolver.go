package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/exchange"
)

// CryptoReference is the fixed crypto reference currency every traded asset
// is priced against.
const CryptoReference = "BTC"

// ProxyFiat is the intermediate currency for two-hop conversion chains.
const ProxyFiat = "USD"

// fiatCurrencies is the set of ISO currencies treated as fiat. Fiat/fiat
// rates come from the rate provider, never from exchange catalogs.
var fiatCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"CHF": true, "AUD": true, "CAD": true, "DKK": true,
}

// IsFiat reports whether an asset code is a fiat currency.
func IsFiat(asset string) bool {
	return fiatCurrencies[asset]
}

// ProxyLeg is one hop of a two-hop conversion chain.
type ProxyLeg struct {
	Pair     string
	Exchange domain.ExchangeID // empty for fiat/fiat legs
	Fiat     bool
}

// ProxyChain routes an unsupported pair through ProxyFiat.
type ProxyChain struct {
	Pair string
	Legs [2]ProxyLeg
}

// Resolution lists every conversion pair needed to price the traded assets,
// grouped by the adapter that serves it. Ephemeral; recomputed each run.
type Resolution struct {
	// CryptoPairs are directly supported pairs per price-capable exchange,
	// covering both the crypto-reference pricing and direct fiat pricing.
	CryptoPairs map[domain.ExchangeID][]string

	// FiatPairs are fiat/fiat pairs served by the rate provider.
	FiatPairs []string

	// ProxyChains are pairs with no direct market that resolve through
	// ProxyFiat with both legs supported.
	ProxyChains []ProxyChain

	// Failed are pairs that resolve neither directly nor via proxy. They
	// require manual operator follow-up and are never silently dropped.
	Failed []string

	// UnsupportedCryptoRef are traded assets with no market against the
	// crypto reference on any configured exchange.
	UnsupportedCryptoRef []string
}

// MarketResolver computes the conversion pairs required to express every
// traded asset in the crypto reference currency and in each fiat reference.
// The search is a shortest-path walk bounded at depth 2, trading completeness
// for determinism and a bounded number of exchange calls.
type MarketResolver struct {
	orders   domain.OrderStore
	adapters []exchange.Adapter // price-capable, in priority order
	fiats    []string
	logger   *slog.Logger
}

// NewMarketResolver builds the resolver over the price-capable adapters in
// priority order and the supported fiat reference set.
func NewMarketResolver(orders domain.OrderStore, adapters []exchange.Adapter, fiats []string) *MarketResolver {
	return &MarketResolver{
		orders:   orders,
		adapters: adapters,
		fiats:    fiats,
		logger:   slog.Default().With("module", "market_resolver"),
	}
}

// Resolve loads the adapter catalogs (concurrently, they are independent
// reads) and runs the resolution over the distinct traded quote assets.
func (r *MarketResolver) Resolve(ctx context.Context) (*Resolution, error) {
	symbols, err := r.orders.DistinctSymbols()
	if err != nil {
		return nil, err
	}

	catalogs, err := r.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}

	return r.resolve(symbols, catalogs)
}

func (r *MarketResolver) loadCatalogs(ctx context.Context) (map[domain.ExchangeID]exchange.MarketCatalog, error) {
	catalogs := make(map[domain.ExchangeID]exchange.MarketCatalog, len(r.adapters))
	errs := make([]error, len(r.adapters))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, a := range r.adapters {
		wg.Add(1)
		go func(i int, a exchange.Adapter) {
			defer wg.Done()
			catalog, err := a.LoadMarkets(ctx)
			if err != nil {
				errs[i] = err
				return
			}
			mu.Lock()
			catalogs[a.ID()] = catalog
			mu.Unlock()
		}(i, a)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return catalogs, nil
}

// resolve is the pure resolution over the traded symbols and loaded catalogs.
func (r *MarketResolver) resolve(symbols []string, catalogs map[domain.ExchangeID]exchange.MarketCatalog) (*Resolution, error) {
	quotes, err := distinctQuotes(symbols)
	if err != nil {
		return nil, err
	}

	res := &Resolution{CryptoPairs: make(map[domain.ExchangeID][]string)}

	// Step 1: every traded asset needs a path to the crypto reference.
	for _, q := range quotes {
		if q == CryptoReference {
			continue
		}
		ex, pair := r.findPair(catalogs, domain.MakeSymbol(q, CryptoReference), domain.MakeSymbol(CryptoReference, q))
		if pair == "" {
			// Expected to stay empty for all known inputs; surfaced, not resolved.
			r.logger.Warn("no market against crypto reference", slog.String("asset", q))
			res.UnsupportedCryptoRef = append(res.UnsupportedCryptoRef, q)
			continue
		}
		res.CryptoPairs[ex] = append(res.CryptoPairs[ex], pair)
	}

	// Step 2: every traded asset needs a path to each fiat reference.
	var unsupported []string
	for _, q := range quotes {
		for _, fiat := range r.fiats {
			if q == fiat {
				continue
			}
			pair := domain.MakeSymbol(q, fiat)
			if IsFiat(q) {
				// Fiat/fiat rates come from the rate provider, no market lookup.
				res.FiatPairs = append(res.FiatPairs, pair)
				continue
			}
			if ex, found := r.findPair(catalogs, pair); found != "" {
				res.CryptoPairs[ex] = append(res.CryptoPairs[ex], found)
				continue
			}
			unsupported = append(unsupported, pair)
		}
	}

	// Step 3: route what is left through the proxy fiat; a pair whose crypto
	// leg has no market on any adapter is a hard failure.
	for _, pair := range unsupported {
		ts, err := domain.ParseSymbol(pair)
		if err != nil {
			return nil, err
		}

		chain := ProxyChain{Pair: pair}
		ok := true
		for i, leg := range []string{
			domain.MakeSymbol(ts.Base, ProxyFiat),
			domain.MakeSymbol(ProxyFiat, ts.Quote),
		} {
			legTS, err := domain.ParseSymbol(leg)
			if err != nil {
				return nil, err
			}
			if IsFiat(legTS.Base) && IsFiat(legTS.Quote) {
				chain.Legs[i] = ProxyLeg{Pair: leg, Fiat: true}
				res.FiatPairs = append(res.FiatPairs, leg)
				continue
			}
			ex, found := r.findPair(catalogs, leg)
			if found == "" {
				ok = false
				break
			}
			chain.Legs[i] = ProxyLeg{Pair: found, Exchange: ex}
			res.CryptoPairs[ex] = append(res.CryptoPairs[ex], found)
		}

		if ok {
			res.ProxyChains = append(res.ProxyChains, chain)
		} else {
			res.Failed = append(res.Failed, pair)
			r.logger.Warn("pair not resolvable within two hops", slog.String("pair", pair))
		}
	}

	// The same pair can be demanded by several source assets.
	for ex := range res.CryptoPairs {
		res.CryptoPairs[ex] = dedupe(res.CryptoPairs[ex])
	}
	res.FiatPairs = dedupe(res.FiatPairs)
	return res, nil
}

// findPair tests candidate orderings against the adapter catalogs in
// priority order and returns the first match.
func (r *MarketResolver) findPair(catalogs map[domain.ExchangeID]exchange.MarketCatalog, candidates ...string) (domain.ExchangeID, string) {
	for _, a := range r.adapters {
		catalog := catalogs[a.ID()]
		for _, candidate := range candidates {
			if catalog.Has(candidate) {
				return a.ID(), candidate
			}
		}
	}
	return "", ""
}

func distinctQuotes(symbols []string) ([]string, error) {
	seen := make(map[string]bool)
	var quotes []string
	for _, s := range symbols {
		ts, err := domain.ParseSymbol(s)
		if err != nil {
			return nil, err
		}
		if !seen[ts.Quote] {
			seen[ts.Quote] = true
			quotes = append(quotes, ts.Quote)
		}
	}
	sort.Strings(quotes)
	return quotes, nil
}

func dedupe(pairs []string) []string {
	seen := make(map[string]bool, len(pairs))
	out := pairs[:0]
	for _, p := range pairs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
