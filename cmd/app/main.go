package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/app"
	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/infra"
	"github.com/itsoneohone/prismaview-sub000/internal/infra/stream"
	"github.com/itsoneohone/prismaview-sub000/internal/service"
)

const usage = `Usage: prismaview <command> [flags]

Commands:
  add-credential    Store an exchange API credential
  revoke-credential Revoke a stored credential
  sync-orders       Sync closed orders for a credential
  resolve-markets   Resolve pricing markets for all synced pairs
  sync-prices       Ingest historical OHLCV candles
  watch             Stream live tickers for synced pairs
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(configPath(args)); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	var err error
	switch command {
	case "add-credential":
		err = runAddCredential(bootstrap, args)
	case "revoke-credential":
		err = runRevokeCredential(bootstrap, args)
	case "sync-orders":
		err = runSyncOrders(ctx, bootstrap, args)
	case "resolve-markets":
		err = runResolveMarkets(ctx, bootstrap, args)
	case "sync-prices":
		err = runSyncPrices(ctx, bootstrap, args)
	case "watch":
		err = runWatch(ctx, bootstrap)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		slog.Error("Command failed", slog.String("command", command), slog.Any("error", err))
		os.Exit(1)
	}
}

// configPath extracts -config early so bootstrapping can run before the
// per-command flag sets are parsed.
func configPath(args []string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return "configs/config.yaml"
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.String("config", "configs/config.yaml", "path to config file")
	return fs
}

func runAddCredential(b *app.Bootstrap, args []string) error {
	fs := newFlagSet("add-credential")
	exchangeID := fs.String("exchange", "", "exchange id (kraken, binance, bitstamp)")
	owner := fs.String("owner", "", "owner user id")
	apiKey := fs.String("key", "", "API key")
	apiSecret := fs.String("secret", "", "API secret")
	fs.Parse(args)

	cred := &domain.Credential{
		OwnerID:   *owner,
		Exchange:  domain.ExchangeID(*exchangeID),
		APIKey:    *apiKey,
		APISecret: *apiSecret,
		CreatedAt: time.Now().UTC(),
	}

	// Probe the exchange before persisting anything
	adapter, err := b.AdapterFactory()(cred)
	if err != nil {
		return err
	}
	valid, err := adapter.ValidateCredentials(context.Background())
	if err != nil {
		return fmt.Errorf("credential validation: %w", err)
	}
	if !valid {
		return fmt.Errorf("credentials rejected by %s", cred.Exchange)
	}
	tooBroad, err := adapter.ValidateCredentialLimitations(context.Background())
	if err != nil {
		return fmt.Errorf("credential limitation check: %w", err)
	}
	if tooBroad {
		return domain.ErrCredentialTooBroad
	}

	if err := b.Storage.SaveCredential(cred); err != nil {
		return err
	}
	fmt.Printf("credential saved: %s\n", cred.ID)
	return nil
}

func runRevokeCredential(b *app.Bootstrap, args []string) error {
	fs := newFlagSet("revoke-credential")
	id := fs.String("id", "", "credential id")
	fs.Parse(args)

	if err := b.Storage.RevokeCredential(*id); err != nil {
		return err
	}
	fmt.Printf("credential revoked: %s\n", *id)
	return nil
}

func runSyncOrders(ctx context.Context, b *app.Bootstrap, args []string) error {
	fs := newFlagSet("sync-orders")
	credentialID := fs.String("credential", "", "credential id")
	mode := fs.String("mode", "RECENT", "sync mode: ALL, RECENT or RANGE")
	start := fs.String("start", "", "range start date (YYYY-MM-DD)")
	end := fs.String("end", "", "range end date (YYYY-MM-DD)")
	fs.Parse(args)

	sync := service.NewOrderSync(b.Storage, b.Storage, b.AdapterFactory())
	summary, err := sync.Run(ctx, service.OrderSyncRequest{
		CredentialID: *credentialID,
		Mode:         service.SyncMode(*mode),
		StartDate:    *start,
		EndDate:      *end,
	})
	if err != nil {
		return err
	}

	fmt.Printf("saved %d orders, skipped %d duplicates\n", summary.SavedCount, summary.SkippedCount)

	// Refresh asset metadata for any newly seen pairs
	b.SyncAssets(ctx)
	return nil
}

func runResolveMarkets(ctx context.Context, b *app.Bootstrap, args []string) error {
	fs := newFlagSet("resolve-markets")
	fs.Parse(args)

	adapters, err := b.PriceAdapters()
	if err != nil {
		return err
	}

	resolver := service.NewMarketResolver(b.Storage, adapters, b.Config.Sync.FiatCurrencies)
	res, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	for ex, pairs := range res.CryptoPairs {
		fmt.Printf("%s crypto pairs: %v\n", ex, pairs)
	}
	if len(res.FiatPairs) > 0 {
		fmt.Printf("fiat pairs: %v\n", res.FiatPairs)
	}
	for _, chain := range res.ProxyChains {
		fmt.Printf("proxy: %s via %s and %s\n", chain.Pair, chain.Legs[0].Pair, chain.Legs[1].Pair)
	}
	if len(res.Failed) > 0 {
		fmt.Printf("unresolvable: %v\n", res.Failed)
	}
	if len(res.UnsupportedCryptoRef) > 0 {
		fmt.Printf("no crypto reference market: %v\n", res.UnsupportedCryptoRef)
	}
	return nil
}

func runSyncPrices(ctx context.Context, b *app.Bootstrap, args []string) error {
	fs := newFlagSet("sync-prices")
	exchangeID := fs.String("exchange", "", "price-capable exchange id")
	symbol := fs.String("symbol", "", "pair to ingest, e.g. BTC/USD (empty = resolve all)")
	timeframe := fs.String("timeframe", "", "candle timeframe (default from config)")
	start := fs.String("start", "", "start date (YYYY-MM-DD)")
	direction := fs.String("direction", "", "paging direction, ASC or DESC (default ASC)")
	limit := fs.Int("limit", 0, "candles per page (default per exchange)")
	pages := fs.Int("pages", 0, "page budget (default from config)")
	fs.Parse(args)

	adapters, err := b.PriceAdapters()
	if err != nil {
		return err
	}
	ingest := service.NewPriceIngest(b.Storage, adapters)

	timeframeOrDefault := *timeframe
	if timeframeOrDefault == "" {
		timeframeOrDefault = b.Config.Sync.Timeframe
	}
	pagesOrDefault := *pages
	if pagesOrDefault == 0 {
		pagesOrDefault = b.Config.Sync.PageBudget
	}

	req := service.PriceIngestRequest{
		Exchange:        *exchangeID,
		Symbol:          *symbol,
		Timeframe:       timeframeOrDefault,
		StartDate:       *start,
		Direction:       *direction,
		Limit:           *limit,
		TargetPageCount: pagesOrDefault,
	}

	var summary service.IngestSummary
	if *symbol == "" {
		// No explicit pair: resolve markets first and ingest everything
		resolver := service.NewMarketResolver(b.Storage, adapters, b.Config.Sync.FiatCurrencies)
		res, err := resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		summary, err = ingest.RunResolution(ctx, res, req)
		if err != nil {
			return err
		}
	} else {
		summary, err = ingest.Run(ctx, req)
		if err != nil {
			return err
		}
	}

	fmt.Printf("fetched %d candles across %d pages, saved %d, skipped %d\n",
		summary.FetchedCount, summary.Pages, summary.SavedCount, summary.SkippedCount)
	return nil
}

func runWatch(ctx context.Context, b *app.Bootstrap) error {
	symbols, err := b.Storage.DistinctSymbols()
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no synced pairs to watch")
	}

	rates := infra.NewFiatRateClientWithConfig(nil, b.Config.API.FiatRates.URL, b.Config.API.FiatRates.PollIntervalSec)
	if err := rates.Start(ctx); err != nil {
		return err
	}
	defer rates.Stop()

	valuation := service.NewValuation(rates)
	valuation.StartProcessor(ctx)

	worker := stream.NewKrakenWorkerWithURL(symbols, valuation.TickerChan(), b.Config.API.Kraken.WSURL)
	if err := worker.Connect(ctx); err != nil {
		return err
	}
	defer worker.Disconnect()

	slog.Info("Watching live tickers", slog.Int("symbols", len(symbols)))

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down gracefully")
			return nil
		case <-ticker.C:
			for _, sym := range valuation.Symbols() {
				if t, ok := valuation.Latest(sym); ok {
					fmt.Printf("%-12s %s (%s%%)\n", sym, t.Price.String(), t.ChangeRate.StringFixed(2))
				}
			}
		}
	}
}
