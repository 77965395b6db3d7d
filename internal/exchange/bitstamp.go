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
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
)

const (
	bitstampBaseURL   = "https://www.bitstamp.net"
	bitstampRateLimit = 2 * time.Second
	bitstampPageSize  = 1000
)

// Bitstamp pages our transaction history newest-first with an offset, and its
// OHLC endpoint caps history depth below what backfill needs, so the variant
// carries no OHLCV capability and is skipped by market resolution.
var bitstampVariant = variant{
	id:        domain.ExchangeBitstamp,
	caps:      []Capability{CapabilityOrderHistory},
	rateLimit: bitstampRateLimit,
	pageSize:  bitstampPageSize,
	direction: FetchDesc,
}

// bitstampClient speaks the Bitstamp REST dialect: form-encoded private calls
// carrying key, nonce and an HMAC-SHA256 signature over nonce+customerID+key.
type bitstampClient struct {
	rest       *restClient
	apiKey     string
	apiSecret  string
	customerID string
}

func newBitstampClient(cred *domain.Credential, baseURL string) *bitstampClient {
	if baseURL == "" {
		baseURL = bitstampBaseURL
	}
	return &bitstampClient{
		rest:       newRESTClient(domain.ExchangeBitstamp, baseURL),
		apiKey:     cred.APIKey,
		apiSecret:  cred.APISecret,
		customerID: cred.OwnerID,
	}
}

func (c *bitstampClient) private(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(nonce + c.customerID + c.apiKey))
	sig := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	params.Set("key", c.apiKey)
	params.Set("nonce", nonce)
	params.Set("signature", sig)

	body, err := c.rest.do(ctx, http.MethodPost, path, nil, []byte(params.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, refineBitstampError(err, body)
	}

	// Bitstamp can report business errors under HTTP 200.
	if businessErr := bitstampBusinessError(path, body); businessErr != nil {
		return nil, businessErr
	}
	return body, nil
}

type bitstampErrorBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

func bitstampBusinessError(path string, body []byte) error {
	var eb bitstampErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Status != "error" {
		return nil
	}
	return domain.NewExchangeError(domain.ExchangeBitstamp, classifyBitstampCode(eb.Code), path,
		fmt.Errorf("code=%s reason=%s", eb.Code, eb.Reason))
}

func refineBitstampError(err error, body []byte) error {
	var ee *domain.ExchangeError
	if !errors.As(err, &ee) || len(body) == 0 {
		return err
	}
	var eb bitstampErrorBody
	if jsonErr := json.Unmarshal(body, &eb); jsonErr != nil || eb.Code == "" {
		return err
	}
	ee.Class = classifyBitstampCode(eb.Code)
	ee.Err = fmt.Errorf("code=%s reason=%s", eb.Code, eb.Reason)
	return ee
}

func classifyBitstampCode(code string) domain.ErrorClass {
	switch code {
	case "API0001", "API0002", "API0005", "API0006": // missing/invalid key or signature
		return domain.ErrClassAuth
	case "API0011": // key not allowed to access this resource
		return domain.ErrClassPermission
	case "API0014":
		return domain.ErrClassRateLimit
	default:
		return domain.ErrClassExchange
	}
}

func (c *bitstampClient) ProbeLowPrivilege(ctx context.Context) error {
	_, err := c.private(ctx, "/api/v2/open_orders/all/", nil)
	return err
}

func (c *bitstampClient) ProbePrivileged(ctx context.Context) error {
	_, err := c.private(ctx, "/api/v2/balance/", nil)
	return err
}

func (c *bitstampClient) LoadMarkets(ctx context.Context) ([]Market, error) {
	body, err := c.rest.do(ctx, http.MethodGet, "/api/v2/trading-pairs-info/", nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var pairs []struct {
		Name    string `json:"name"` // "BTC/USD"
		Trading string `json:"trading"`
	}
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeBitstamp, domain.ErrClassExchange, "trading-pairs-info", err)
	}

	markets := make([]Market, 0, len(pairs))
	for _, p := range pairs {
		if p.Trading != "Enabled" {
			continue
		}
		ts, err := domain.ParseSymbol(p.Name)
		if err != nil {
			continue
		}
		markets = append(markets, Market{Symbol: p.Name, Base: ts.Base, Quote: ts.Quote})
	}
	return markets, nil
}

type bitstampOrder struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	Pair      string `json:"pair"` // "btc_usd"
	Side      string `json:"side"`
	OrderType string `json:"order_type"`
	Status    string `json:"status"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Fee       string `json:"fee"`
	Datetime  string `json:"datetime"` // "2006-01-02 15:04:05"
}

// TradedSymbols returns nil: user_transactions is account-wide.
func (c *bitstampClient) TradedSymbols(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (c *bitstampClient) FetchClosedOrders(ctx context.Context, p PageParams) ([]RawOrder, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(p.Offset))
	params.Set("limit", strconv.Itoa(p.Limit))
	params.Set("sort", "desc")
	params.Set("since_timestamp", strconv.FormatInt(p.Start/1000, 10))
	params.Set("until_timestamp", strconv.FormatInt(p.End/1000, 10))

	body, err := c.private(ctx, "/api/v2/user_transactions/", params)
	if err != nil {
		return nil, err
	}

	var rows []bitstampOrder
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeBitstamp, domain.ErrClassExchange, "user_transactions", err)
	}

	orders := make([]RawOrder, 0, len(rows))
	for _, o := range rows {
		ts, err := time.Parse("2006-01-02 15:04:05", o.Datetime)
		if err != nil {
			return nil, domain.NewExchangeError(domain.ExchangeBitstamp, domain.ErrClassExchange, "user_transactions",
				fmt.Errorf("bad datetime %q: %w", o.Datetime, err))
		}
		raw, _ := json.Marshal(o)
		orders = append(orders, RawOrder{
			ID:        strconv.FormatInt(o.OrderID, 10),
			Symbol:    canonicalBitstampPair(o.Pair),
			Side:      strings.ToUpper(o.Side),
			Type:      strings.ToUpper(o.OrderType),
			Status:    strings.ToUpper(o.Status),
			Price:     o.Price,
			Filled:    o.Amount,
			Fee:       o.Fee,
			Timestamp: ts.UTC().UnixMilli(),
			Payload:   string(raw),
		})
	}
	return orders, nil
}

func canonicalBitstampPair(pair string) string {
	parts := strings.Split(pair, "_")
	if len(parts) != 2 {
		return strings.ToUpper(pair)
	}
	return domain.MakeSymbol(strings.ToUpper(parts[0]), strings.ToUpper(parts[1]))
}

// FetchOHLCV is present to satisfy the native client boundary; the variant
// does not advertise the OHLCV capability so the adapter never routes here.
func (c *bitstampClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]RawCandle, error) {
	return nil, domain.NewExchangeError(domain.ExchangeBitstamp, domain.ErrClassExchange, "ohlc",
		errors.New("insufficient history depth"))
}
