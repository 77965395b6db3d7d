package service

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
)

// Valuation keeps the latest live ticker per traded pair and joins it with
// the fiat rate provider for reference-currency conversion. It backs current
// portfolio valuation between historical ingestion runs.
type Valuation struct {
	mu         sync.RWMutex
	tickers    map[string]domain.Ticker
	rates      domain.RateProvider
	tickerChan chan []domain.Ticker
}

// NewValuation creates an empty valuation cache.
func NewValuation(rates domain.RateProvider) *Valuation {
	return &Valuation{
		tickers:    make(map[string]domain.Ticker),
		rates:      rates,
		tickerChan: make(chan []domain.Ticker, 1000), // burst buffer for ws feeds
	}
}

// TickerChan is the inbox stream workers publish into.
func (v *Valuation) TickerChan() chan []domain.Ticker {
	return v.tickerChan
}

// StartProcessor drains the ticker channel in the background.
func (v *Valuation) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tickers := <-v.tickerChan:
				v.ProcessTickers(tickers)
			}
		}
	}()
}

// ProcessTickers stores the latest ticker per symbol. Thread-safe.
func (v *Valuation) ProcessTickers(tickers []domain.Ticker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range tickers {
		v.tickers[t.Symbol] = t
	}
}

// Latest returns a copy of the newest ticker for a symbol.
func (v *Valuation) Latest(symbol string) (domain.Ticker, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	t, ok := v.tickers[symbol]
	return t, ok
}

// LatestInFiat converts the newest price of symbol into the requested fiat
// using the rate provider. Returns false when either the ticker or the
// fiat/fiat rate is missing.
func (v *Valuation) LatestInFiat(symbol, fiat string) (decimal.Decimal, bool) {
	t, ok := v.Latest(symbol)
	if !ok {
		return decimal.Zero, false
	}

	ts, err := domain.ParseSymbol(symbol)
	if err != nil {
		return decimal.Zero, false
	}
	if ts.Quote == fiat {
		return t.Price, true
	}

	rate, ok := v.rates.Rate(ts.Quote, fiat)
	if !ok {
		return decimal.Zero, false
	}
	return t.Price.Mul(rate), true
}

// Symbols lists the cached symbols in stable order.
func (v *Valuation) Symbols() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.tickers))
	for s := range v.tickers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
