package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
)

const (
	krakenBaseURL   = "https://api.kraken.com"
	krakenRateLimit = 3 * time.Second
	krakenPageSize  = 50
	// Kraken serves at most 720 candles per OHLC request, newest window only.
	krakenOHLCVLimit = 720
)

var krakenVariant = variant{
	id:         domain.ExchangeKraken,
	caps:       []Capability{CapabilityOrderHistory, CapabilityOHLCV},
	rateLimit:  krakenRateLimit,
	pageSize:   krakenPageSize,
	ohlcvLimit: krakenOHLCVLimit,
	direction:  FetchDesc,
}

// krakenAssetAliases maps Kraken's legacy asset codes to canonical ones.
var krakenAssetAliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// krakenClient speaks the Kraken REST dialect: form-encoded private calls
// signed with HMAC-SHA512 over the URI path and a nonce-salted payload hash.
type krakenClient struct {
	rest      *restClient
	apiKey    string
	apiSecret string

	// altname ("ETHEUR") -> canonical symbol ("ETH/EUR"), filled by LoadMarkets.
	altnames map[string]string
}

func newKrakenClient(cred *domain.Credential, baseURL string) *krakenClient {
	if baseURL == "" {
		baseURL = krakenBaseURL
	}
	return &krakenClient{
		rest:      newRESTClient(domain.ExchangeKraken, baseURL),
		apiKey:    cred.APIKey,
		apiSecret: cred.APISecret,
		altnames:  make(map[string]string),
	}
}

// sign builds the API-Sign header: HMAC-SHA512(path + SHA256(nonce+postdata))
// keyed with the base64-decoded secret.
func (c *krakenClient) sign(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("malformed kraken secret: %w", err)
	}

	sha := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *krakenClient) private(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("nonce", strconv.FormatInt(time.Now().UnixNano(), 10))
	postData := params.Encode()

	sig, err := c.sign(path, params.Get("nonce"), postData)
	if err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassAuth, path, err)
	}

	body, err := c.rest.do(ctx, http.MethodPost, path, nil, []byte(postData), map[string]string{
		"API-Key":      c.apiKey,
		"API-Sign":     sig,
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	return c.unwrap(path, body)
}

func (c *krakenClient) public(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	body, err := c.rest.do(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return nil, err
	}
	return c.unwrap(path, body)
}

// unwrap decodes the common {error, result} envelope and classifies
// Kraken's E-prefixed business errors.
func (c *krakenClient) unwrap(path string, body []byte) (json.RawMessage, error) {
	var env krakenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassExchange, path, err)
	}
	if len(env.Error) > 0 {
		msg := strings.Join(env.Error, "; ")
		return nil, domain.NewExchangeError(domain.ExchangeKraken, classifyKrakenError(msg), path, fmt.Errorf("%s", msg))
	}
	return env.Result, nil
}

func classifyKrakenError(msg string) domain.ErrorClass {
	switch {
	case strings.Contains(msg, "Permission denied"):
		return domain.ErrClassPermission
	case strings.HasPrefix(msg, "EAPI:Invalid key"), strings.HasPrefix(msg, "EAPI:Invalid signature"), strings.HasPrefix(msg, "EAPI:Invalid nonce"):
		return domain.ErrClassAuth
	case strings.Contains(msg, "Rate limit"):
		return domain.ErrClassRateLimit
	case strings.HasPrefix(msg, "EService:"):
		return domain.ErrClassNetwork
	default:
		return domain.ErrClassExchange
	}
}

func (c *krakenClient) ProbeLowPrivilege(ctx context.Context) error {
	_, err := c.private(ctx, "/0/private/OpenOrders", nil)
	return err
}

func (c *krakenClient) ProbePrivileged(ctx context.Context) error {
	_, err := c.private(ctx, "/0/private/Balance", nil)
	return err
}

type krakenPair struct {
	Altname string `json:"altname"`
	WSName  string `json:"wsname"`
}

func (c *krakenClient) LoadMarkets(ctx context.Context) ([]Market, error) {
	result, err := c.public(ctx, "/0/public/AssetPairs", nil)
	if err != nil {
		return nil, err
	}

	var pairs map[string]krakenPair
	if err := json.Unmarshal(result, &pairs); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassExchange, "AssetPairs", err)
	}

	markets := make([]Market, 0, len(pairs))
	for _, p := range pairs {
		if p.WSName == "" {
			continue
		}
		parts := strings.Split(p.WSName, "/")
		if len(parts) != 2 {
			continue
		}
		base := canonicalKrakenAsset(parts[0])
		quote := canonicalKrakenAsset(parts[1])
		symbol := domain.MakeSymbol(base, quote)
		c.altnames[p.Altname] = symbol
		markets = append(markets, Market{Symbol: symbol, Base: base, Quote: quote})
	}
	return markets, nil
}

func canonicalKrakenAsset(asset string) string {
	if alias, ok := krakenAssetAliases[asset]; ok {
		return alias
	}
	return asset
}

type krakenClosedOrder struct {
	Status  string  `json:"status"`
	CloseTm float64 `json:"closetm"` // seconds, fractional
	VolExec string  `json:"vol_exec"`
	Price   string  `json:"price"`
	Fee     string  `json:"fee"`
	Descr   struct {
		Pair      string `json:"pair"`
		Type      string `json:"type"`      // buy / sell
		OrderType string `json:"ordertype"` // limit / market
	} `json:"descr"`
}

// TradedSymbols returns nil: ClosedOrders is account-wide.
func (c *krakenClient) TradedSymbols(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (c *krakenClient) FetchClosedOrders(ctx context.Context, p PageParams) ([]RawOrder, error) {
	if len(c.altnames) == 0 {
		if _, err := c.LoadMarkets(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set("start", strconv.FormatInt(p.Start/1000, 10))
	params.Set("end", strconv.FormatInt(p.End/1000, 10))
	params.Set("ofs", strconv.Itoa(p.Offset))
	params.Set("closetime", "close")

	result, err := c.private(ctx, "/0/private/ClosedOrders", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Closed map[string]krakenClosedOrder `json:"closed"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassExchange, "ClosedOrders", err)
	}

	orders := make([]RawOrder, 0, len(payload.Closed))
	for txid, o := range payload.Closed {
		symbol, ok := c.altnames[o.Descr.Pair]
		if !ok {
			// Delisted pair: fall back to the wire name untouched; the
			// normalizer rejects it if it cannot be parsed.
			symbol = o.Descr.Pair
		}
		raw, _ := json.Marshal(o)
		orders = append(orders, RawOrder{
			ID:        txid,
			Symbol:    symbol,
			Side:      strings.ToUpper(o.Descr.Type),
			Type:      strings.ToUpper(o.Descr.OrderType),
			Status:    strings.ToUpper(o.Status),
			Price:     o.Price,
			Filled:    o.VolExec,
			Fee:       o.Fee,
			Timestamp: int64(o.CloseTm * 1000),
			Payload:   string(raw),
		})
	}

	// The closed-orders result is a map; restore reverse-chronological order,
	// Kraken's native paging direction.
	sort.Slice(orders, func(i, j int) bool { return orders[i].Timestamp > orders[j].Timestamp })
	return orders, nil
}

func (c *krakenClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]RawCandle, error) {
	interval, err := timeframeMinutes(timeframe)
	if err != nil {
		return nil, &domain.ValidationError{Field: "timeframe", Err: err}
	}

	query := url.Values{}
	query.Set("pair", strings.ReplaceAll(symbol, "/", ""))
	query.Set("interval", strconv.Itoa(interval))
	if since > 0 {
		query.Set("since", strconv.FormatInt(since/1000, 10))
	}

	result, err := c.public(ctx, "/0/public/OHLC", query)
	if err != nil {
		return nil, err
	}

	// Result keys the candle array by pair id next to a "last" cursor.
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassExchange, "OHLC", err)
	}

	var candles []RawCandle
	for key, rawRows := range payload {
		if key == "last" {
			continue
		}
		var rows [][]json.RawMessage
		if err := json.Unmarshal(rawRows, &rows); err != nil {
			return nil, domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassExchange, "OHLC", err)
		}
		for _, row := range rows {
			// [time, open, high, low, close, vwap, volume, count]
			if len(row) < 7 {
				continue
			}
			candle, err := candleFromRow(row[0], row[1], row[2], row[3], row[4], row[6])
			if err != nil {
				return nil, domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassExchange, "OHLC", err)
			}
			candle.Timestamp *= 1000 // seconds -> ms
			candles = append(candles, candle)
			if len(candles) >= limit {
				break
			}
		}
	}
	return candles, nil
}
