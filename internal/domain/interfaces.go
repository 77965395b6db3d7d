package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderFilter narrows order queries. Zero values mean "any".
type OrderFilter struct {
	CredentialID string
	OwnerID      string
	Exchange     ExchangeID
}

// OrderStore is the persistence collaborator for orders. Inserts skip
// duplicates on (exchange, order_id) so concurrent retries stay idempotent.
type OrderStore interface {
	FindOrders(filter OrderFilter) ([]Order, error)
	OldestOrder(credentialID string) (*Order, error)
	NewestOrder(credentialID string) (*Order, error)
	InsertOrders(orders []Order) (int, error)
	DistinctSymbols() ([]string, error)
}

// PriceFilter narrows price-point queries.
type PriceFilter struct {
	Symbol   string
	Exchange ExchangeID
	Since    int64
}

// PriceStore is the persistence collaborator for OHLCV rows. Inserts skip
// duplicates on (symbol, exchange, timestamp).
type PriceStore interface {
	FindPricePoints(filter PriceFilter) ([]PricePoint, error)
	InsertPricePoints(points []PricePoint) (int, error)
}

// CredentialStore manages exchange credentials.
type CredentialStore interface {
	GetCredential(id string) (*Credential, error)
	SaveCredential(c *Credential) error
	RevokeCredential(id string) error
}

// RateProvider supplies fiat/fiat reference rates from a non-exchange source.
type RateProvider interface {
	Start(ctx context.Context) error
	Rate(base, quote string) (decimal.Decimal, bool)
}

// StreamWorker is a live market-data connection (websocket ticker feed).
type StreamWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}
