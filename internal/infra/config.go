package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ExchangeAPIConfig holds per-exchange endpoint and credential settings.
// Keys loaded from file can be overridden by environment variables.
type ExchangeAPIConfig struct {
	RestURL   string `yaml:"rest_url"`
	WSURL     string `yaml:"ws_url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// Config holds every application setting.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		Kraken   ExchangeAPIConfig `yaml:"kraken"`
		Binance  ExchangeAPIConfig `yaml:"binance"`
		Bitstamp ExchangeAPIConfig `yaml:"bitstamp"`

		FiatRates struct {
			URL             string `yaml:"url"`
			PollIntervalSec int    `yaml:"poll_interval_sec"`
		} `yaml:"fiat_rates"`
	} `yaml:"api"`

	Sync struct {
		FiatCurrencies []string `yaml:"fiat_currencies"`
		Timeframe      string   `yaml:"timeframe"`
		PageBudget     int      `yaml:"page_budget"`
	} `yaml:"sync"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides for secrets and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Sync.FiatCurrencies) == 0 {
		return fmt.Errorf("at least one fiat currency is required")
	}
	for _, f := range c.Sync.FiatCurrencies {
		if len(f) != 3 || f != strings.ToUpper(f) {
			return fmt.Errorf("invalid fiat currency code: %s", f)
		}
	}
	if c.Sync.PageBudget < 0 {
		return fmt.Errorf("page budget must not be negative")
	}
	if url := c.API.Kraken.WSURL; url != "" && !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return fmt.Errorf("invalid Kraken WS URL: %s", url)
	}
	return nil
}

// overrideWithEnv replaces secrets with environment values when present.
func overrideWithEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		"PV_KRAKEN_KEY":      &cfg.API.Kraken.APIKey,
		"PV_KRAKEN_SECRET":   &cfg.API.Kraken.APISecret,
		"PV_BINANCE_KEY":     &cfg.API.Binance.APIKey,
		"PV_BINANCE_SECRET":  &cfg.API.Binance.APISecret,
		"PV_BITSTAMP_KEY":    &cfg.API.Bitstamp.APIKey,
		"PV_BITSTAMP_SECRET": &cfg.API.Bitstamp.APISecret,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}
