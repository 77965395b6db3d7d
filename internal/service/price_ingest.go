package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/exchange"
	"github.com/itsoneohone/prismaview-sub000/internal/infra"
)

// PriceIngestRequest drives one historical price ingestion run.
type PriceIngestRequest struct {
	Exchange        string `validate:"required,oneof=kraken binance"`
	Symbol          string `validate:"required"`
	Timeframe       string `validate:"omitempty,oneof=1m 5m 15m 1h 4h 1d 1w"`
	StartDate       string `validate:"omitempty,datetime=2006-01-02"`
	Direction       string `validate:"omitempty,oneof=ASC DESC"`
	Limit           int    `validate:"omitempty,gt=0"`
	TargetPageCount int    `validate:"omitempty,gt=0"`
}

// IngestSummary reports one ingestion run.
type IngestSummary struct {
	FetchedCount int `json:"fetched_count"`
	SavedCount   int `json:"saved_count"`
	SkippedCount int `json:"skipped_count"`
	Pages        int `json:"pages"`
}

// PriceIngest fetches OHLCV candles from price-capable adapters and persists
// normalized price rows, deduplicated on (symbol, exchange, timestamp).
type PriceIngest struct {
	prices   domain.PriceStore
	adapters map[domain.ExchangeID]exchange.Adapter
	validate *validator.Validate
	sleep    exchange.SleepFunc
	now      func() time.Time
	logger   *slog.Logger
}

// NewPriceIngest wires the ingestion service over the price-capable adapters.
func NewPriceIngest(prices domain.PriceStore, adapters []exchange.Adapter) *PriceIngest {
	byID := make(map[domain.ExchangeID]exchange.Adapter, len(adapters))
	for _, a := range adapters {
		byID[a.ID()] = a
	}
	return &PriceIngest{
		prices:   prices,
		adapters: byID,
		validate: validator.New(),
		sleep:    exchange.Sleep,
		now:      time.Now,
		logger:   slog.Default().With("module", "price_ingest"),
	}
}

// Run ingests candles for one pair until the exchange runs out of history or
// the page budget is spent. ASC pages forward from the start date; DESC walks
// fixed windows back from the present toward it. The same rate-limit spacing
// applies between candle pages as between order pages.
func (p *PriceIngest) Run(ctx context.Context, req PriceIngestRequest) (IngestSummary, error) {
	var summary IngestSummary

	if err := p.validateRequest(&req); err != nil {
		return summary, err
	}

	adapter, ok := p.adapters[domain.ExchangeID(req.Exchange)]
	if !ok {
		return summary, fmt.Errorf("%w: %s", domain.ErrUnknownExchange, req.Exchange)
	}

	since := windowFloor.UnixMilli()
	if req.StartDate != "" {
		start, _ := time.Parse(dateLayout, req.StartDate)
		since = start.UnixMilli()
	}

	step, err := timeframeMillis(req.Timeframe)
	if err != nil {
		return summary, &domain.ValidationError{Field: "Timeframe", Err: err}
	}

	now := p.now().UnixMilli()
	floor := since
	span := step * int64(req.Limit)
	desc := req.Direction == string(exchange.FetchDesc)
	if desc {
		since = now - span
		if since < floor {
			since = floor
		}
	}

	for page := 0; page < req.TargetPageCount; page++ {
		if page > 0 {
			p.sleep(ctx, adapter.RateLimit())
		}
		if err := ctx.Err(); err != nil {
			return summary, domain.NewExchangeError(adapter.ID(), domain.ErrClassNetwork, "ingest", err)
		}

		points, err := adapter.FetchOHLCV(ctx, req.Symbol, req.Timeframe, since, req.Limit)
		if err != nil {
			infra.GlobalMetrics.RecordError()
			return summary, fmt.Errorf("fetch %s candles: %w", req.Exchange, err)
		}
		if len(points) == 0 {
			break
		}
		summary.Pages++
		summary.FetchedCount += len(points)

		inserted, err := p.prices.InsertPricePoints(points)
		if err != nil {
			return summary, fmt.Errorf("persist price points: %w", err)
		}
		summary.SavedCount += inserted
		summary.SkippedCount += len(points) - inserted
		infra.GlobalMetrics.RecordPricePointsSaved(uint64(inserted))

		if desc {
			if since <= floor {
				break
			}
			since -= span
			if since < floor {
				since = floor
			}
			continue
		}

		last := points[len(points)-1].Timestamp
		if last+step >= now {
			break
		}
		since = last + step
	}

	p.logger.Info("price ingestion finished",
		slog.String("exchange", req.Exchange),
		slog.String("symbol", req.Symbol),
		slog.Int("pages", summary.Pages),
		slog.Int("saved", summary.SavedCount),
		slog.Int("skipped", summary.SkippedCount),
	)
	return summary, nil
}

// RunResolution ingests every directly supported pair of a market resolution,
// plus both crypto legs of each proxy chain (already folded into CryptoPairs
// by the resolver). Fiat pairs are the rate provider's responsibility.
func (p *PriceIngest) RunResolution(ctx context.Context, res *Resolution, req PriceIngestRequest) (IngestSummary, error) {
	var total IngestSummary
	for ex, pairs := range res.CryptoPairs {
		for _, pair := range pairs {
			r := req
			r.Exchange = string(ex)
			r.Symbol = pair
			summary, err := p.Run(ctx, r)
			total.FetchedCount += summary.FetchedCount
			total.SavedCount += summary.SavedCount
			total.SkippedCount += summary.SkippedCount
			total.Pages += summary.Pages
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (p *PriceIngest) validateRequest(req *PriceIngestRequest) error {
	if req.Timeframe == "" {
		req.Timeframe = "1d"
	}
	if req.Direction == "" {
		req.Direction = "ASC"
	}
	if req.Limit == 0 {
		req.Limit = 720
	}
	if req.TargetPageCount == 0 {
		req.TargetPageCount = 1
	}

	if err := p.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return &domain.ValidationError{
				Field: f.Field(),
				Err:   fmt.Errorf("failed %q constraint", f.Tag()),
			}
		}
		return err
	}

	if _, err := domain.ParseSymbol(req.Symbol); err != nil {
		return &domain.ValidationError{Field: "Symbol", Err: err}
	}
	return nil
}

func timeframeMillis(timeframe string) (int64, error) {
	switch timeframe {
	case "1m":
		return time.Minute.Milliseconds(), nil
	case "5m":
		return 5 * time.Minute.Milliseconds(), nil
	case "15m":
		return 15 * time.Minute.Milliseconds(), nil
	case "1h":
		return time.Hour.Milliseconds(), nil
	case "4h":
		return 4 * time.Hour.Milliseconds(), nil
	case "1d":
		return 24 * time.Hour.Milliseconds(), nil
	case "1w":
		return 7 * 24 * time.Hour.Milliseconds(), nil
	default:
		return 0, fmt.Errorf("unknown timeframe %q", timeframe)
	}
}
