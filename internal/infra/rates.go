package infra

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// frankfurterResponse represents the Frankfurter API response. Rates are
// quoted against the base currency.
type frankfurterResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// FiatRateClient polls a public forex API and keeps a USD-based rate table.
// It implements domain.RateProvider; cross rates are derived through USD.
type FiatRateClient struct {
	onUpdate     func(map[string]decimal.Decimal)
	rates        map[string]decimal.Decimal
	mu           sync.RWMutex
	pollInterval time.Duration
	apiURL       string
	httpClient   *http.Client
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewFiatRateClient creates a new fiat rate client with defaults.
func NewFiatRateClient(onUpdate func(map[string]decimal.Decimal)) *FiatRateClient {
	return &FiatRateClient{
		onUpdate:     onUpdate,
		rates:        map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)},
		pollInterval: 60 * time.Second, // Default: 1 minute
		apiURL:       "https://api.frankfurter.app/latest?base=USD",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewFiatRateClientWithConfig creates a client with custom configuration.
func NewFiatRateClientWithConfig(onUpdate func(map[string]decimal.Decimal), apiURL string, pollIntervalSec int) *FiatRateClient {
	client := NewFiatRateClient(onUpdate)
	if apiURL != "" {
		client.apiURL = apiURL
	}
	if pollIntervalSec > 0 {
		client.pollInterval = time.Duration(pollIntervalSec) * time.Second
	}
	return client
}

// Start begins polling for rate updates.
func (c *FiatRateClient) Start(ctx context.Context) error {
	// Create a cancellable context
	ctx, c.cancel = context.WithCancel(ctx)

	// Fetch immediately on start
	if err := c.fetchRates(ctx); err != nil {
		slog.Warn("Initial fiat rate fetch failed", slog.Any("error", err))
		// Continue anyway - will retry on next tick
	}

	// Start polling goroutine
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Fiat rate polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Fiat rate polling stopped")
				return
			case <-ticker.C:
				if err := c.fetchRates(ctx); err != nil {
					slog.Warn("Fiat rate fetch failed", slog.Any("error", err))
				}
			}
		}
	}()

	return nil
}

// fetchRates fetches the current rate table with retry logic.
func (c *FiatRateClient) fetchRates(ctx context.Context) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			// Exponential backoff: 1s, 2s, 4s
			delay := time.Duration(1<<uint(i-1)) * time.Second
			slog.Info("Retrying fiat rate fetch", slog.Int("attempt", i), slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doFetch(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("Fiat rate fetch attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return lastErr
}

func (c *FiatRateClient) doFetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return err
	}

	// Add browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var data frankfurterResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return err
	}

	if len(data.Rates) == 0 {
		return fmt.Errorf("empty rate table from forex API")
	}
	if !strings.EqualFold(data.Base, "USD") {
		return fmt.Errorf("unexpected base currency: %s", data.Base)
	}

	table := make(map[string]decimal.Decimal, len(data.Rates)+1)
	table["USD"] = decimal.NewFromInt(1)
	for code, rate := range data.Rates {
		table[strings.ToUpper(code)] = decimal.NewFromFloat(rate)
	}

	c.mu.Lock()
	c.rates = table
	c.mu.Unlock()

	slog.Info("Fiat rate table updated", slog.Int("currencies", len(table)), slog.String("date", data.Date))

	if c.onUpdate != nil {
		c.onUpdate(table)
	}

	return nil
}

// Stop stops the polling.
func (c *FiatRateClient) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
}

// Rate returns the base/quote cross rate derived through USD. The second
// return value is false when either currency is missing from the table.
func (c *FiatRateClient) Rate(base, quote string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, okB := c.rates[strings.ToUpper(base)]
	q, okQ := c.rates[strings.ToUpper(quote)]
	if !okB || !okQ || b.IsZero() {
		return decimal.Zero, false
	}
	// rates are USD->X, so base->quote = (USD->quote) / (USD->base)
	return q.Div(b), true
}
