package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/exchange"
)

// fakeOrderStore is an in-memory OrderStore with duplicate-skipping inserts.
type fakeOrderStore struct {
	orders []domain.Order
}

func (f *fakeOrderStore) FindOrders(filter domain.OrderFilter) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders {
		if filter.CredentialID != "" && o.CredentialID != filter.CredentialID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrderStore) OldestOrder(credentialID string) (*domain.Order, error) {
	return f.extreme(credentialID, func(a, b int64) bool { return a < b })
}

func (f *fakeOrderStore) NewestOrder(credentialID string) (*domain.Order, error) {
	return f.extreme(credentialID, func(a, b int64) bool { return a > b })
}

func (f *fakeOrderStore) extreme(credentialID string, better func(a, b int64) bool) (*domain.Order, error) {
	var found *domain.Order
	for i := range f.orders {
		o := &f.orders[i]
		if o.CredentialID != credentialID {
			continue
		}
		if found == nil || better(o.Timestamp, found.Timestamp) {
			found = o
		}
	}
	return found, nil
}

func (f *fakeOrderStore) InsertOrders(orders []domain.Order) (int, error) {
	seen := make(map[string]bool, len(f.orders))
	for _, o := range f.orders {
		seen[string(o.Exchange)+"|"+o.OrderID] = true
	}
	inserted := 0
	for _, o := range orders {
		key := string(o.Exchange) + "|" + o.OrderID
		if seen[key] {
			continue
		}
		seen[key] = true
		f.orders = append(f.orders, o)
		inserted++
	}
	return inserted, nil
}

func (f *fakeOrderStore) DistinctSymbols() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, o := range f.orders {
		if !seen[o.Symbol] {
			seen[o.Symbol] = true
			out = append(out, o.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

// fakeCredStore hands out a fixed credential set.
type fakeCredStore struct {
	creds map[string]*domain.Credential
}

func (f *fakeCredStore) GetCredential(id string) (*domain.Credential, error) {
	// Mirrors the sqlite store: a missing credential is (nil, nil).
	return f.creds[id], nil
}

func (f *fakeCredStore) SaveCredential(c *domain.Credential) error { return nil }
func (f *fakeCredStore) RevokeCredential(id string) error          { return nil }

// fakeAdapter is a scripted exchange.Adapter.
type fakeAdapter struct {
	id          domain.ExchangeID
	caps        []exchange.Capability
	orders      []domain.Order
	ordersErr   error
	catalog     exchange.MarketCatalog
	candlePages [][]domain.PricePoint
	candleCalls int
	candleSince []int64
	syncCalls   int
}

func (f *fakeAdapter) ID() domain.ExchangeID              { return f.id }
func (f *fakeAdapter) RateLimit() time.Duration           { return time.Millisecond }
func (f *fakeAdapter) PageSize() int                      { return 50 }
func (f *fakeAdapter) Direction() exchange.FetchDirection { return exchange.FetchDesc }

func (f *fakeAdapter) HasCapability(c exchange.Capability) bool {
	for _, have := range f.caps {
		if have == c {
			return true
		}
	}
	return false
}

func (f *fakeAdapter) ValidateCredentials(ctx context.Context) (bool, error)           { return true, nil }
func (f *fakeAdapter) ValidateCredentialLimitations(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeAdapter) LoadMarkets(ctx context.Context) (exchange.MarketCatalog, error) {
	return f.catalog, nil
}

func (f *fakeAdapter) SyncOrders(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	f.syncCalls++
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	var out []domain.Order
	for _, o := range f.orders {
		if !o.Datetime.Before(start) && o.Datetime.Before(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeAdapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]domain.PricePoint, error) {
	f.candleSince = append(f.candleSince, since)
	if f.candleCalls >= len(f.candlePages) {
		return nil, nil
	}
	page := f.candlePages[f.candleCalls]
	f.candleCalls++
	return page, nil
}

func catalogOf(symbols ...string) exchange.MarketCatalog {
	c := make(exchange.MarketCatalog, len(symbols))
	for _, s := range symbols {
		ts, _ := domain.ParseSymbol(s)
		c[s] = exchange.Market{Symbol: s, Base: ts.Base, Quote: ts.Quote}
	}
	return c
}

// fakePriceStore is an in-memory PriceStore with duplicate-skipping inserts.
type fakePriceStore struct {
	points []domain.PricePoint
}

func (f *fakePriceStore) FindPricePoints(filter domain.PriceFilter) ([]domain.PricePoint, error) {
	return f.points, nil
}

func (f *fakePriceStore) InsertPricePoints(points []domain.PricePoint) (int, error) {
	seen := make(map[string]bool, len(f.points))
	key := func(p domain.PricePoint) string {
		return p.Symbol + "|" + string(p.Exchange) + "|" + time.UnixMilli(p.Timestamp).String()
	}
	for _, p := range f.points {
		seen[key(p)] = true
	}
	inserted := 0
	for _, p := range points {
		if seen[key(p)] {
			continue
		}
		seen[key(p)] = true
		f.points = append(f.points, p)
		inserted++
	}
	return inserted, nil
}

// fakeRates serves a static fiat rate table.
type fakeRates struct {
	rates map[string]decimal.Decimal // "EUR/USD" -> rate
}

func (f *fakeRates) Start(ctx context.Context) error { return nil }

func (f *fakeRates) Rate(base, quote string) (decimal.Decimal, bool) {
	r, ok := f.rates[base+"/"+quote]
	return r, ok
}

func syncOrder(id, symbol string, ts time.Time) domain.Order {
	tsym, _ := domain.ParseSymbol(symbol)
	return domain.Order{
		OrderID:   id,
		Exchange:  domain.ExchangeKraken,
		Symbol:    symbol,
		Base:      tsym.Base,
		Quote:     tsym.Quote,
		Currency:  tsym.Currency,
		Side:      domain.SideBuy,
		Type:      domain.OrderTypeLimit,
		Timestamp: ts.UnixMilli(),
		Datetime:  ts,
		CreatedBy: domain.CreatedBySync,
	}
}
