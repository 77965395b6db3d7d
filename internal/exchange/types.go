package exchange

import "github.com/shopspring/decimal"

// PageParams drives one page of a native closed-orders fetch. Offset-paging
// exchanges use Offset; cursor-paging exchanges use Cursor/CursorTS, the
// terminal record of the previous page.
type PageParams struct {
	Start    int64  // ms epoch, inclusive
	End      int64  // ms epoch, exclusive
	Symbol   string // canonical pair; set only for per-symbol exchanges
	Limit    int
	Offset   int
	Cursor   string
	CursorTS int64
}

// RawOrder is an order row as the native client hands it over: canonical
// symbol, numeric fields still in wire-string form, payload retained verbatim.
// Pages come back unfiltered so pagination sees the native row count; rows in
// a non-terminal status are dropped by the adapter after paging.
type RawOrder struct {
	ID        string
	Symbol    string // canonical "BASE/QUOTE"
	Side      string
	Type      string
	Status    string
	Price     string
	Filled    string
	Fee       string
	Timestamp int64 // ms epoch
	Payload   string
}

// RawCandle is one OHLCV row from a native client.
type RawCandle struct {
	Timestamp int64 // ms epoch
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}
