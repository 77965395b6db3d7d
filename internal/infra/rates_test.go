package infra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mockRateBody(base string, rates map[string]float64) []byte {
	body, _ := json.Marshal(frankfurterResponse{
		Base:  base,
		Date:  "2026-08-28",
		Rates: rates,
	})
	return body
}

func TestFiatRateClient_FetchRates(t *testing.T) {
	mockBody := mockRateBody("USD", map[string]float64{"EUR": 0.92, "GBP": 0.79})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(mockBody)
	}))
	defer server.Close()

	client := NewFiatRateClientWithConfig(nil, server.URL, 1)

	if err := client.fetchRates(context.Background()); err != nil {
		t.Fatalf("fetchRates failed: %v", err)
	}

	rate, ok := client.Rate("USD", "EUR")
	if !ok {
		t.Fatal("Expected USD/EUR rate")
	}
	if rate.String() != "0.92" {
		t.Errorf("Expected 0.92, got %s", rate.String())
	}

	// Cross rate through USD: EUR/GBP = 0.79 / 0.92
	cross, ok := client.Rate("EUR", "GBP")
	if !ok {
		t.Fatal("Expected EUR/GBP cross rate")
	}
	expected := decimal.NewFromFloat(0.79).Div(decimal.NewFromFloat(0.92))
	if !cross.Equal(expected) {
		t.Errorf("Expected %s, got %s", expected.String(), cross.String())
	}
}

func TestFiatRateClient_UnknownCurrency(t *testing.T) {
	client := NewFiatRateClient(nil)

	if _, ok := client.Rate("USD", "EUR"); ok {
		t.Error("Expected no rate before any fetch")
	}
	// USD/USD is identity and always available
	rate, ok := client.Rate("USD", "USD")
	if !ok || rate.String() != "1" {
		t.Errorf("Expected USD/USD = 1, got %s (ok=%v)", rate.String(), ok)
	}
}

func TestFiatRateClient_StartStop(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
		w.Write(mockRateBody("USD", map[string]float64{"EUR": 0.92}))
	}))
	defer server.Close()

	client := NewFiatRateClientWithConfig(nil, server.URL, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for initial fetch
	time.Sleep(100 * time.Millisecond)

	if callCount < 1 {
		t.Error("Expected at least one API call")
	}

	// Stop should complete without hanging
	client.Stop()
}

func TestFiatRateClient_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(mockRateBody("USD", nil))
	}))
	defer server.Close()

	client := NewFiatRateClientWithConfig(nil, server.URL, 1)

	if err := client.doFetch(context.Background()); err == nil {
		t.Error("Empty rate table should return error")
	}
}

func TestFiatRateClient_WrongBase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(mockRateBody("EUR", map[string]float64{"USD": 1.09}))
	}))
	defer server.Close()

	client := NewFiatRateClientWithConfig(nil, server.URL, 1)

	if err := client.doFetch(context.Background()); err == nil {
		t.Error("Non-USD base should return error")
	}
}

func TestFiatRateClient_RetryOnFailure(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(mockRateBody("USD", map[string]float64{"EUR": 0.92}))
	}))
	defer server.Close()

	client := NewFiatRateClientWithConfig(nil, server.URL, 1)

	// Should retry 2 times and succeed on 3rd
	if err := client.fetchRates(context.Background()); err != nil {
		t.Fatalf("fetchRates should succeed after retries: %v", err)
	}

	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}
