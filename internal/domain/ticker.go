package domain

import "github.com/shopspring/decimal"

// Ticker is a live price update for one trading pair from one exchange.
type Ticker struct {
	Symbol     string          `json:"symbol"` // canonical "BASE/QUOTE"
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`      // 24h volume
	ChangeRate decimal.Decimal `json:"change_rate"` // 24h change (%)
	Exchange   ExchangeID      `json:"exchange"`
}
