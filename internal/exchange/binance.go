package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/quant"
)

const (
	binanceBaseURL    = "https://api.binance.com"
	binanceRateLimit  = 1 * time.Second
	binancePageSize   = 500
	binanceOHLCVLimit = 1000
)

var binanceVariant = variant{
	id:           domain.ExchangeBinance,
	caps:         []Capability{CapabilityOrderHistory, CapabilityOHLCV},
	rateLimit:    binanceRateLimit,
	pageSize:     binancePageSize,
	ohlcvLimit:   binanceOHLCVLimit,
	direction:    FetchAsc,
	perSymbol:    true,
	closedStatus: isClosedBinanceStatus,
}

// binanceClient speaks the Binance REST dialect: signed query strings with an
// HMAC-SHA256 hex signature and the key in an X-MBX-APIKEY header. History
// pages forward using the last order id as a cursor.
type binanceClient struct {
	rest      *restClient
	apiKey    string
	apiSecret string

	// wire symbol ("ETHEUR") -> canonical symbol ("ETH/EUR").
	wireSymbols map[string]string
}

func newBinanceClient(cred *domain.Credential, baseURL string) *binanceClient {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	return &binanceClient{
		rest:        newRESTClient(domain.ExchangeBinance, baseURL),
		apiKey:      cred.APIKey,
		apiSecret:   cred.APISecret,
		wireSymbols: make(map[string]string),
	}
}

func (c *binanceClient) signed(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query.Set("recvWindow", "5000")

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query.Encode()))
	query.Set("signature", hex.EncodeToString(mac.Sum(nil)))

	body, err := c.rest.do(ctx, http.MethodGet, path, query, nil, map[string]string{
		"X-MBX-APIKEY": c.apiKey,
	})
	if err != nil {
		return nil, refineBinanceError(err, body)
	}
	return body, nil
}

// refineBinanceError upgrades a generic HTTP-status classification using the
// business code Binance embeds in error bodies.
func refineBinanceError(err error, body []byte) error {
	var ee *domain.ExchangeError
	if !errors.As(err, &ee) || len(body) == 0 {
		return err
	}

	var apiErr struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil {
		return err
	}

	switch apiErr.Code {
	case -2014, -2015, -1022: // bad key, bad signature
		ee.Class = domain.ErrClassAuth
	case -1002, -4087: // unauthorized for this endpoint
		ee.Class = domain.ErrClassPermission
	case -1003:
		ee.Class = domain.ErrClassRateLimit
	}
	if apiErr.Msg != "" {
		ee.Err = fmt.Errorf("code=%d msg=%s", apiErr.Code, apiErr.Msg)
	}
	return ee
}

func (c *binanceClient) ProbeLowPrivilege(ctx context.Context) error {
	// Key restriction lookup only needs the key itself to be valid.
	_, err := c.signed(ctx, "/sapi/v1/account/apiRestrictions", nil)
	return err
}

func (c *binanceClient) ProbePrivileged(ctx context.Context) error {
	// Wallet listing requires the withdraw/balance scope a sync-only key
	// must not carry.
	_, err := c.signed(ctx, "/sapi/v1/capital/config/getall", nil)
	return err
}

func (c *binanceClient) LoadMarkets(ctx context.Context) ([]Market, error) {
	body, err := c.rest.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var info struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeBinance, domain.ErrClassExchange, "exchangeInfo", err)
	}

	markets := make([]Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		symbol := domain.MakeSymbol(s.BaseAsset, s.QuoteAsset)
		c.wireSymbols[s.Symbol] = symbol
		markets = append(markets, Market{Symbol: symbol, Base: s.BaseAsset, Quote: s.QuoteAsset})
	}
	return markets, nil
}

type binanceOrder struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Price       string `json:"price"`
	ExecutedQty string `json:"executedQty"`
	Time        int64  `json:"time"`
}

func (c *binanceClient) FetchClosedOrders(ctx context.Context, p PageParams) ([]RawOrder, error) {
	if p.Symbol == "" {
		return nil, domain.NewExchangeError(domain.ExchangeBinance, domain.ErrClassExchange, "allOrders",
			errors.New("allOrders requires a symbol"))
	}
	if len(c.wireSymbols) == 0 {
		if _, err := c.LoadMarkets(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	query.Set("symbol", strings.ReplaceAll(p.Symbol, "/", ""))
	query.Set("limit", strconv.Itoa(p.Limit))
	if p.Cursor != "" {
		// Forward cursor: everything after the last seen order id.
		query.Set("orderId", p.Cursor)
	} else {
		query.Set("startTime", strconv.FormatInt(p.Start, 10))
	}
	query.Set("endTime", strconv.FormatInt(p.End, 10))

	body, err := c.signed(ctx, "/api/v3/allOrders", query)
	if err != nil {
		return nil, err
	}

	var rows []binanceOrder
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeBinance, domain.ErrClassExchange, "allOrders", err)
	}

	// Open rows stay in the page so the caller can page on the native row
	// count; the adapter drops them after pagination.
	orders := make([]RawOrder, 0, len(rows))
	for _, o := range rows {
		symbol, ok := c.wireSymbols[o.Symbol]
		if !ok {
			symbol = o.Symbol
		}
		raw, _ := json.Marshal(o)
		orders = append(orders, RawOrder{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    symbol,
			Side:      o.Side,
			Type:      o.Type,
			Status:    o.Status,
			Price:     o.Price,
			Filled:    o.ExecutedQty,
			Fee:       "",
			Timestamp: o.Time,
			Payload:   string(raw),
		})
	}
	return orders, nil
}

func isClosedBinanceStatus(status string) bool {
	switch status {
	case "FILLED", "CANCELED", "EXPIRED":
		return true
	default:
		return false
	}
}

// TradedSymbols narrows the catalog to pairs whose base asset carries a
// balance on the account. Binance has no account-wide history endpoint, so
// order sync pages each of these pairs separately.
func (c *binanceClient) TradedSymbols(ctx context.Context) ([]string, error) {
	if len(c.wireSymbols) == 0 {
		if _, err := c.LoadMarkets(ctx); err != nil {
			return nil, err
		}
	}

	body, err := c.signed(ctx, "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}

	var acct struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeBinance, domain.ErrClassExchange, "account", err)
	}

	held := make(map[string]bool, len(acct.Balances))
	for _, b := range acct.Balances {
		if nonzeroAmount(b.Free) || nonzeroAmount(b.Locked) {
			held[b.Asset] = true
		}
	}

	var symbols []string
	for _, canonical := range c.wireSymbols {
		ts, err := domain.ParseSymbol(canonical)
		if err != nil {
			continue
		}
		if held[ts.Base] {
			symbols = append(symbols, canonical)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

func nonzeroAmount(s string) bool {
	v, err := quant.Parse(s)
	return err == nil && !v.IsZero()
}

func (c *binanceClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]RawCandle, error) {
	query := url.Values{}
	query.Set("symbol", strings.ReplaceAll(symbol, "/", ""))
	query.Set("interval", timeframe)
	query.Set("limit", strconv.Itoa(limit))
	if since > 0 {
		query.Set("startTime", strconv.FormatInt(since, 10))
	}

	body, err := c.rest.do(ctx, http.MethodGet, "/api/v3/klines", query, nil, nil)
	if err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeBinance, domain.ErrClassExchange, "klines", err)
	}

	candles := make([]RawCandle, 0, len(rows))
	for _, row := range rows {
		// [openTime, open, high, low, close, volume, closeTime, ...]
		if len(row) < 6 {
			continue
		}
		candle, err := candleFromRow(row[0], row[1], row[2], row[3], row[4], row[5])
		if err != nil {
			return nil, domain.NewExchangeError(domain.ExchangeBinance, domain.ErrClassExchange, "klines", err)
		}
		candles = append(candles, candle) // openTime is already ms
	}
	return candles, nil
}
