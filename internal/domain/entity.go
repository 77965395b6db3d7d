package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeID identifies a supported exchange.
type ExchangeID string

const (
	ExchangeKraken   ExchangeID = "kraken"
	ExchangeBinance  ExchangeID = "binance"
	ExchangeBitstamp ExchangeID = "bitstamp"
)

// Credential is an API key/secret pair scoped to one exchange and one user.
// Soft-deleted on revocation so the audit trail survives.
type Credential struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	OwnerID   string     `gorm:"index" json:"owner_id"`
	Exchange  ExchangeID `gorm:"index" json:"exchange"`
	APIKey    string     `json:"-"`
	APISecret string     `json:"-"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsRevoked reports whether the credential has been soft-deleted.
func (c *Credential) IsRevoked() bool {
	return c.RevokedAt != nil
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"

	CreatedByUser = "USER"
	CreatedBySync = "SYNC"
)

// Order is a normalized closed order from any exchange.
// OrderID is the exchange-native identifier and is never regenerated;
// together with Exchange it is the deduplication key.
type Order struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	OrderID      string          `gorm:"uniqueIndex:idx_exchange_order;not null" json:"order_id"`
	Exchange     ExchangeID      `gorm:"uniqueIndex:idx_exchange_order" json:"exchange"`
	OwnerID      string          `gorm:"index" json:"owner_id"`
	CredentialID string          `gorm:"index" json:"credential_id"`
	Symbol       string          `json:"symbol"`
	Base         string          `json:"base"`
	Quote        string          `json:"quote"`
	Currency     string          `json:"currency"`
	Side         string          `json:"side"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Price        decimal.Decimal `gorm:"type:text" json:"price"`
	Filled       decimal.Decimal `gorm:"type:text" json:"filled"`
	Cost         decimal.Decimal `gorm:"type:text" json:"cost"`
	Fee          decimal.Decimal `gorm:"type:text" json:"fee"`
	Timestamp    int64           `gorm:"index" json:"timestamp"`
	Datetime     time.Time       `json:"datetime"`
	CreatedBy    string          `json:"created_by"`
	RawPayload   string          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PricePoint is one normalized OHLCV candle. Global, shared read-only by all
// users, append-only: deduplicated on insert, never merged.
type PricePoint struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	Symbol    string          `gorm:"uniqueIndex:idx_symbol_exchange_ts" json:"symbol"`
	Exchange  ExchangeID      `gorm:"uniqueIndex:idx_symbol_exchange_ts" json:"exchange"`
	Timestamp int64           `gorm:"uniqueIndex:idx_symbol_exchange_ts" json:"timestamp"`
	Base      string          `json:"base"`
	Quote     string          `json:"quote"`
	Open      decimal.Decimal `gorm:"type:text" json:"open"`
	High      decimal.Decimal `gorm:"type:text" json:"high"`
	Low       decimal.Decimal `gorm:"type:text" json:"low"`
	Close     decimal.Decimal `gorm:"type:text" json:"close"`
	Volume    decimal.Decimal `gorm:"type:text" json:"volume"`
	Datetime  time.Time       `json:"datetime"`
	CreatedAt time.Time       `json:"created_at"`
}

// AssetInfo is cached metadata for a traded base asset.
type AssetInfo struct {
	Symbol       string    `gorm:"primaryKey" json:"symbol"`
	Name         string    `json:"name"`
	IconPath     string    `json:"icon_path"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FetchWindow is the [Start, End) range a sync pass covers. Ephemeral,
// computed per invocation, never persisted.
type FetchWindow struct {
	Start time.Time
	End   time.Time
}

// SyncSummary reports the outcome of one order sync pass.
type SyncSummary struct {
	SavedCount   int      `json:"saved_count"`
	SavedIDs     []string `json:"saved_ids"`
	SkippedCount int      `json:"skipped_count"`
	SkippedIDs   []string `json:"skipped_ids"`
}
