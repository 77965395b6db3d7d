// Package exchange implements the per-exchange adapter layer: credential
// validation, market catalog loading, and rate-limited paginated retrieval of
// closed orders and OHLCV candles. Each supported exchange contributes a
// native client speaking its own REST dialect; the adapter on top gives every
// variant the same contract and the same normalization rules.
package exchange

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/quant"
)

// Capability is a feature an exchange variant may support.
type Capability string

const (
	CapabilityOrderHistory Capability = "order_history"
	CapabilityOHLCV        Capability = "ohlcv"
)

// FetchDirection is the order in which an exchange pages through history.
type FetchDirection string

const (
	FetchAsc  FetchDirection = "ASC"
	FetchDesc FetchDirection = "DESC"
)

// Market is one tradable pair from an exchange catalog.
type Market struct {
	Symbol string // canonical "BASE/QUOTE"
	Base   string
	Quote  string
}

// MarketCatalog is an exchange's tradable-pair catalog keyed by canonical symbol.
type MarketCatalog map[string]Market

// Has reports whether the catalog lists the given canonical symbol.
func (c MarketCatalog) Has(symbol string) bool {
	_, ok := c[symbol]
	return ok
}

// Adapter is the per-exchange contract. Implementations are stateless aside
// from the lazily-populated market-catalog cache tied to one instance.
type Adapter interface {
	ID() domain.ExchangeID
	HasCapability(c Capability) bool
	RateLimit() time.Duration
	PageSize() int
	Direction() FetchDirection

	// ValidateCredentials issues a low-privilege authenticated call. An
	// authentication-class failure maps to (false, nil); any other failure
	// class is returned as an error.
	ValidateCredentials(ctx context.Context) (bool, error)

	// ValidateCredentialLimitations issues a privileged probe and returns
	// true only if the exchange rejects it with a permission-class error,
	// i.e. the credential is deliberately under-privileged. A successful
	// probe means the credential is too broad (false, nil); any other
	// failure class is returned as an error.
	ValidateCredentialLimitations(ctx context.Context) (bool, error)

	// LoadMarkets loads and caches the tradable-pair catalog. Safe to call
	// repeatedly; subsequent calls return the cached catalog.
	LoadMarkets(ctx context.Context) (MarketCatalog, error)

	// SyncOrders retrieves every closed order in [start, end), paging through
	// the exchange's native pagination with the mandatory inter-page delay.
	// On a page failure the already-fetched orders are returned alongside the
	// tagged error; the caller decides whether to persist the partial result.
	SyncOrders(ctx context.Context, start, end time.Time) ([]domain.Order, error)

	// FetchOHLCV retrieves up to limit candles for one canonical pair
	// starting at since. Only meaningful when CapabilityOHLCV is present.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]domain.PricePoint, error)
}

// nativeClient is the exchange client library boundary: request signing,
// endpoint paths and response shapes live behind it.
type nativeClient interface {
	FetchClosedOrders(ctx context.Context, p PageParams) ([]RawOrder, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]RawCandle, error)
	LoadMarkets(ctx context.Context) ([]Market, error)

	// TradedSymbols returns the canonical pairs order sync must page
	// individually. Exchanges whose history endpoint is account-wide
	// return nil.
	TradedSymbols(ctx context.Context) ([]string, error)

	ProbeLowPrivilege(ctx context.Context) error
	ProbePrivileged(ctx context.Context) error
}

// variant bundles the fixed per-exchange constants.
type variant struct {
	id         domain.ExchangeID
	caps       []Capability
	rateLimit  time.Duration
	pageSize   int
	ohlcvLimit int
	direction  FetchDirection

	// perSymbol marks exchanges whose history endpoint demands a symbol
	// parameter; sync enumerates TradedSymbols and pages each one.
	perSymbol bool

	// closedStatus, when set, filters out rows whose status is not
	// terminal. Applied after paging so a page's native row count still
	// decides whether another page follows.
	closedStatus func(status string) bool
}

// adapter is the shared Adapter implementation over a nativeClient.
type adapter struct {
	variant
	client nativeClient
	sleep  SleepFunc

	mu      sync.Mutex
	catalog MarketCatalog
}

func newAdapter(v variant, client nativeClient, sleep SleepFunc) *adapter {
	if sleep == nil {
		sleep = Sleep
	}
	return &adapter{variant: v, client: client, sleep: sleep}
}

func (a *adapter) ID() domain.ExchangeID     { return a.id }
func (a *adapter) RateLimit() time.Duration  { return a.rateLimit }
func (a *adapter) PageSize() int             { return a.pageSize }
func (a *adapter) Direction() FetchDirection { return a.direction }

func (a *adapter) HasCapability(c Capability) bool {
	for _, have := range a.caps {
		if have == c {
			return true
		}
	}
	return false
}

func (a *adapter) ValidateCredentials(ctx context.Context) (bool, error) {
	err := a.client.ProbeLowPrivilege(ctx)
	if err == nil {
		return true, nil
	}
	if domain.ErrorClassOf(err) == domain.ErrClassAuth {
		return false, nil
	}
	return false, err
}

func (a *adapter) ValidateCredentialLimitations(ctx context.Context) (bool, error) {
	err := a.client.ProbePrivileged(ctx)
	if err == nil {
		// The privileged call succeeded: the key can do more than sync needs.
		return false, nil
	}
	if domain.ErrorClassOf(err) == domain.ErrClassPermission {
		return true, nil
	}
	return false, err
}

func (a *adapter) LoadMarkets(ctx context.Context) (MarketCatalog, error) {
	return a.loadMarkets(ctx, false)
}

func (a *adapter) loadMarkets(ctx context.Context, force bool) (MarketCatalog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.catalog != nil && !force {
		return a.catalog, nil
	}

	markets, err := a.client.LoadMarkets(ctx)
	if err != nil {
		return nil, err
	}

	catalog := make(MarketCatalog, len(markets))
	for _, m := range markets {
		catalog[m.Symbol] = m
	}
	a.catalog = catalog
	return catalog, nil
}

func (a *adapter) SyncOrders(ctx context.Context, start, end time.Time) ([]domain.Order, error) {
	var raws []RawOrder
	var err error
	if a.perSymbol {
		raws, err = a.fetchOrdersPerSymbol(ctx, start, end)
	} else {
		raws, err = a.fetchOrders(ctx, start, end, "")
	}

	orders := make([]domain.Order, 0, len(raws))
	for _, raw := range raws {
		if a.closedStatus != nil && !a.closedStatus(raw.Status) {
			continue
		}
		order, convErr := a.normalizeOrder(raw)
		if convErr != nil {
			return orders, convErr
		}
		orders = append(orders, order)
	}
	return orders, err
}

// fetchOrders pages one history stream to completion. symbol is empty for
// exchanges with an account-wide history endpoint.
func (a *adapter) fetchOrders(ctx context.Context, start, end time.Time, symbol string) ([]RawOrder, error) {
	return paginate(ctx, a.id, a.pageSize, a.rateLimit, a.sleep,
		func(ctx context.Context, offset int, last *RawOrder) ([]RawOrder, error) {
			p := PageParams{
				Start:  start.UnixMilli(),
				End:    end.UnixMilli(),
				Symbol: symbol,
				Limit:  a.pageSize,
				Offset: offset,
			}
			if last != nil {
				p.Cursor = last.ID
				p.CursorTS = last.Timestamp
			}
			return a.client.FetchClosedOrders(ctx, p)
		})
}

// fetchOrdersPerSymbol runs one pagination per traded symbol, with the same
// rate-limit spacing between symbols as between pages.
func (a *adapter) fetchOrdersPerSymbol(ctx context.Context, start, end time.Time) ([]RawOrder, error) {
	symbols, err := a.client.TradedSymbols(ctx)
	if err != nil {
		return nil, err
	}

	var all []RawOrder
	for i, symbol := range symbols {
		if i > 0 {
			a.sleep(ctx, a.rateLimit)
		}
		raws, err := a.fetchOrders(ctx, start, end, symbol)
		all = append(all, raws...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

// normalizeOrder converts a raw closed order into the canonical record.
// Cost is always re-derived from price*filled so the rounding invariant holds
// even when the exchange's own rounding differs.
func (a *adapter) normalizeOrder(raw RawOrder) (domain.Order, error) {
	ts, err := domain.ParseSymbol(raw.Symbol)
	if err != nil {
		return domain.Order{}, err
	}

	price, err := quant.Parse(raw.Price)
	if err != nil {
		return domain.Order{}, err
	}
	filled, err := quant.Parse(raw.Filled)
	if err != nil {
		return domain.Order{}, err
	}
	fee, err := quant.Parse(raw.Fee)
	if err != nil {
		return domain.Order{}, err
	}

	return domain.Order{
		OrderID:    raw.ID,
		Exchange:   a.id,
		Symbol:     raw.Symbol,
		Base:       ts.Base,
		Quote:      ts.Quote,
		Currency:   ts.Currency,
		Side:       raw.Side,
		Type:       raw.Type,
		Status:     raw.Status,
		Price:      price,
		Filled:     filled,
		Cost:       quant.Cost(price, filled),
		Fee:        fee,
		Timestamp:  raw.Timestamp,
		Datetime:   time.UnixMilli(raw.Timestamp).UTC(),
		CreatedBy:  domain.CreatedBySync,
		RawPayload: raw.Payload,
	}, nil
}

func (a *adapter) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]domain.PricePoint, error) {
	if !a.HasCapability(CapabilityOHLCV) {
		return nil, domain.NewExchangeError(a.id, domain.ErrClassExchange, "fetch_ohlcv",
			errors.New("exchange does not expose historical candles"))
	}
	if limit <= 0 || limit > a.ohlcvLimit {
		limit = a.ohlcvLimit
	}

	ts, err := domain.ParseSymbol(symbol)
	if err != nil {
		return nil, err
	}

	raws, err := a.client.FetchOHLCV(ctx, symbol, timeframe, since, limit)
	if err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, 0, len(raws))
	for _, c := range raws {
		points = append(points, domain.PricePoint{
			Symbol:    symbol,
			Exchange:  a.id,
			Base:      ts.Base,
			Quote:     ts.Quote,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
			Timestamp: c.Timestamp,
			Datetime:  time.UnixMilli(c.Timestamp).UTC(),
		})
	}
	return points, nil
}
