package exchange

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// timeframeMinutes converts a timeframe token ("1m", "1h", "1d", "1w") into
// minutes, the unit Kraken's OHLC endpoint expects.
func timeframeMinutes(timeframe string) (int, error) {
	if len(timeframe) < 2 {
		return 0, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	n, err := strconv.Atoi(timeframe[:len(timeframe)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	switch timeframe[len(timeframe)-1] {
	case 'm':
		return n, nil
	case 'h':
		return n * 60, nil
	case 'd':
		return n * 1440, nil
	case 'w':
		return n * 10080, nil
	default:
		return 0, fmt.Errorf("unknown timeframe %q", timeframe)
	}
}

// decimalField decodes a JSON number or numeric string into a Decimal.
// Exchanges are split on which representation they use for candle rows.
func decimalField(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(string(raw), `"`)
	return decimal.NewFromString(s)
}

// candleFromRow builds a RawCandle from positional JSON row fields:
// timestamp, open, high, low, close, volume. The timestamp unit is the
// caller's to fix up.
func candleFromRow(ts, open, high, low, closeP, volume json.RawMessage) (RawCandle, error) {
	t, err := strconv.ParseFloat(strings.Trim(string(ts), `"`), 64)
	if err != nil {
		return RawCandle{}, fmt.Errorf("bad candle timestamp %s: %w", ts, err)
	}

	var c RawCandle
	c.Timestamp = int64(t)
	for _, f := range []struct {
		raw json.RawMessage
		dst *decimal.Decimal
	}{
		{open, &c.Open}, {high, &c.High}, {low, &c.Low}, {closeP, &c.Close}, {volume, &c.Volume},
	} {
		d, err := decimalField(f.raw)
		if err != nil {
			return RawCandle{}, fmt.Errorf("bad candle field %s: %w", f.raw, err)
		}
		*f.dst = d
	}
	return c, nil
}
