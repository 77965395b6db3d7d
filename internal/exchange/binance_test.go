package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
)

func TestRefineBinanceError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.ErrorClass
	}{
		{"bad api key", `{"code":-2014,"msg":"API-key format invalid."}`, domain.ErrClassAuth},
		{"bad signature", `{"code":-2015,"msg":"Invalid API-key, IP, or permissions."}`, domain.ErrClassAuth},
		{"bad timestamp", `{"code":-1022,"msg":"Signature for this request is not valid."}`, domain.ErrClassAuth},
		{"unauthorized endpoint", `{"code":-1002,"msg":"You are not authorized."}`, domain.ErrClassPermission},
		{"rate limited", `{"code":-1003,"msg":"Too many requests."}`, domain.ErrClassRateLimit},
		{"business error keeps class", `{"code":-1121,"msg":"Invalid symbol."}`, domain.ErrClassExchange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := domain.NewExchangeError(domain.ExchangeBinance, domain.ErrClassExchange, "probe", nil)
			got := refineBinanceError(base, []byte(tt.body))
			if domain.ErrorClassOf(got) != tt.want {
				t.Errorf("class = %s, want %s", domain.ErrorClassOf(got), tt.want)
			}
		})
	}
}

func TestRefineBinanceError_PassthroughOnForeignError(t *testing.T) {
	err := context.DeadlineExceeded
	if got := refineBinanceError(err, []byte(`{"code":-2014}`)); got != err {
		t.Error("non-exchange errors must pass through unchanged")
	}
}

func TestIsClosedBinanceStatus(t *testing.T) {
	closed := []string{"FILLED", "CANCELED", "EXPIRED"}
	for _, s := range closed {
		if !isClosedBinanceStatus(s) {
			t.Errorf("%s must count as closed", s)
		}
	}
	open := []string{"NEW", "PARTIALLY_FILLED", "PENDING_CANCEL"}
	for _, s := range open {
		if isClosedBinanceStatus(s) {
			t.Errorf("%s must not count as closed", s)
		}
	}
}

func TestBinanceFetchClosedOrders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"ETHEUR","status":"TRADING","baseAsset":"ETH","quoteAsset":"EUR"},
			{"symbol":"BTCUSDT","status":"BREAK","baseAsset":"BTC","quoteAsset":"USDT"}
		]}`))
	})
	mux.HandleFunc("/api/v3/allOrders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":-2014,"msg":"API-key format invalid."}`))
			return
		}
		if r.URL.Query().Get("signature") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":-1022,"msg":"missing signature"}`))
			return
		}
		// allOrders has no account-wide variant.
		if r.URL.Query().Get("symbol") != "ETHEUR" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1102,"msg":"Mandatory parameter 'symbol' was not sent."}`))
			return
		}
		w.Write([]byte(`[
			{"orderId":101,"symbol":"ETHEUR","side":"BUY","type":"LIMIT","status":"FILLED",
				"price":"1800.12345678","executedQty":"0.5","time":1651400000123},
			{"orderId":102,"symbol":"ETHEUR","side":"SELL","type":"MARKET","status":"NEW",
				"price":"1900","executedQty":"0","time":1651400100000}
		]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newBinanceClient(&domain.Credential{APIKey: "key", APISecret: "secret"}, srv.URL)
	orders, err := c.FetchClosedOrders(context.Background(), PageParams{Start: 0, End: 1700000000000, Symbol: "ETH/EUR", Limit: 500})
	if err != nil {
		t.Fatalf("FetchClosedOrders failed: %v", err)
	}

	// The still-open order stays in the page so the caller sees the native
	// row count; the adapter drops it after pagination.
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2 native rows", len(orders))
	}
	o := orders[0]
	if o.ID != "101" {
		t.Errorf("ID = %s, want 101", o.ID)
	}
	if o.Symbol != "ETH/EUR" {
		t.Errorf("wire symbol mapped to %q, want ETH/EUR", o.Symbol)
	}
	if o.Timestamp != 1651400000123 {
		t.Errorf("timestamp = %d, want 1651400000123", o.Timestamp)
	}
	if o.Payload == "" {
		t.Error("raw payload must be retained")
	}
	if orders[1].Status != "NEW" {
		t.Errorf("status = %s, want the open row passed through as NEW", orders[1].Status)
	}
}

func TestBinanceFetchClosedOrders_SymbolMandatory(t *testing.T) {
	c := newBinanceClient(&domain.Credential{APIKey: "key", APISecret: "secret"}, "http://unreachable.invalid")
	_, err := c.FetchClosedOrders(context.Background(), PageParams{Start: 0, End: 1, Limit: 500})
	if domain.ErrorClassOf(err) != domain.ErrClassExchange {
		t.Fatalf("err = %v, want tagged exchange-class error for missing symbol", err)
	}
}

func TestBinanceTradedSymbols(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[
			{"symbol":"ETHEUR","status":"TRADING","baseAsset":"ETH","quoteAsset":"EUR"},
			{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"},
			{"symbol":"XRPUSDT","status":"TRADING","baseAsset":"XRP","quoteAsset":"USDT"}
		]}`))
	})
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balances":[
			{"asset":"ETH","free":"0.5","locked":"0"},
			{"asset":"XRP","free":"0","locked":"0"},
			{"asset":"EUR","free":"120.00","locked":"0"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newBinanceClient(&domain.Credential{APIKey: "key", APISecret: "secret"}, srv.URL)
	symbols, err := c.TradedSymbols(context.Background())
	if err != nil {
		t.Fatalf("TradedSymbols failed: %v", err)
	}

	want := []string{"ETH/BTC", "ETH/EUR"}
	if len(symbols) != len(want) {
		t.Fatalf("symbols = %v, want %v", symbols, want)
	}
	for i, s := range want {
		if symbols[i] != s {
			t.Errorf("symbols[%d] = %q, want %q", i, symbols[i], s)
		}
	}
}

func TestBinanceFetchClosedOrders_CursorWins(t *testing.T) {
	var gotQuery map[string][]string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{"symbol":"ETHEUR","status":"TRADING","baseAsset":"ETH","quoteAsset":"EUR"}]}`))
	})
	mux.HandleFunc("/api/v3/allOrders", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newBinanceClient(&domain.Credential{APIKey: "key", APISecret: "secret"}, srv.URL)
	_, err := c.FetchClosedOrders(context.Background(), PageParams{Start: 1000, End: 2000, Symbol: "ETH/EUR", Limit: 500, Cursor: "101"})
	if err != nil {
		t.Fatalf("FetchClosedOrders failed: %v", err)
	}

	if got := gotQuery["orderId"]; len(got) != 1 || got[0] != "101" {
		t.Errorf("orderId = %v, want [101]", got)
	}
	if _, ok := gotQuery["startTime"]; ok {
		t.Error("cursor pages must not also send startTime")
	}
}

func TestBinanceAuthClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions."}`))
	}))
	defer srv.Close()

	c := newBinanceClient(&domain.Credential{APIKey: "bad", APISecret: "secret"}, srv.URL)
	err := c.ProbeLowPrivilege(context.Background())
	if domain.ErrorClassOf(err) != domain.ErrClassAuth {
		t.Errorf("err = %v, want auth-class", err)
	}
}
