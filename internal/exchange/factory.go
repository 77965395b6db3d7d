package exchange

import (
	"fmt"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
)

// Options tunes adapter construction. Zero values select production defaults;
// tests inject a stub base URL and an instant sleeper.
type Options struct {
	BaseURL string
	Sleep   SleepFunc
}

// New builds the adapter variant for the credential's exchange.
func New(cred *domain.Credential, opts Options) (Adapter, error) {
	switch cred.Exchange {
	case domain.ExchangeKraken:
		return newAdapter(krakenVariant, newKrakenClient(cred, opts.BaseURL), opts.Sleep), nil
	case domain.ExchangeBinance:
		return newAdapter(binanceVariant, newBinanceClient(cred, opts.BaseURL), opts.Sleep), nil
	case domain.ExchangeBitstamp:
		return newAdapter(bitstampVariant, newBitstampClient(cred, opts.BaseURL), opts.Sleep), nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, cred.Exchange)
	}
}

// PriceCapableIDs lists the exchanges usable for historical price resolution,
// in priority order. Bitstamp syncs orders fine but is excluded here: its
// OHLC history depth cannot cover backfill windows.
func PriceCapableIDs() []domain.ExchangeID {
	return []domain.ExchangeID{domain.ExchangeKraken, domain.ExchangeBinance}
}
