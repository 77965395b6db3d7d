package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/exchange"
	"github.com/itsoneohone/prismaview-sub000/internal/infra"
	"github.com/itsoneohone/prismaview-sub000/internal/infra/storage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Icons   *infra.IconCache
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB, dirs)
func (b *Bootstrap) Initialize(configPath string) error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage()
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized")

	// 4. Initialize Icon Cache
	icons, err := infra.NewIconCache()
	if err != nil {
		return err
	}
	b.Icons = icons
	slog.Info("Icon cache ready")

	return nil
}

// PriceAdapters builds adapters for the price-capable exchanges in priority
// order. Historical candle endpoints are public, so config keys may be empty.
func (b *Bootstrap) PriceAdapters() ([]exchange.Adapter, error) {
	adapters := make([]exchange.Adapter, 0, 2)
	for _, id := range exchange.PriceCapableIDs() {
		api := b.exchangeConfig(id)
		cred := &domain.Credential{
			ID:        "system-" + string(id),
			Exchange:  id,
			APIKey:    api.APIKey,
			APISecret: api.APISecret,
		}
		a, err := exchange.New(cred, exchange.Options{BaseURL: api.RestURL})
		if err != nil {
			return nil, fmt.Errorf("build %s adapter: %w", id, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// AdapterFactory returns the production adapter factory, honoring per-exchange
// endpoint overrides from config.
func (b *Bootstrap) AdapterFactory() func(cred *domain.Credential) (exchange.Adapter, error) {
	return func(cred *domain.Credential) (exchange.Adapter, error) {
		api := b.exchangeConfig(cred.Exchange)
		return exchange.New(cred, exchange.Options{BaseURL: api.RestURL})
	}
}

func (b *Bootstrap) exchangeConfig(id domain.ExchangeID) infra.ExchangeAPIConfig {
	switch id {
	case domain.ExchangeKraken:
		return b.Config.API.Kraken
	case domain.ExchangeBinance:
		return b.Config.API.Binance
	case domain.ExchangeBitstamp:
		return b.Config.API.Bitstamp
	default:
		return infra.ExchangeAPIConfig{}
	}
}

// SyncAssets refreshes cached asset metadata and icons for every base asset
// seen in the synced order history. Runs in the background after startup.
func (b *Bootstrap) SyncAssets(ctx context.Context) {
	slog.Info("Starting asset synchronization")

	symbols, err := b.Storage.DistinctSymbols()
	if err != nil {
		slog.Error("Failed to list synced symbols", slog.Any("error", err))
		return
	}

	// Collect unique base assets from the synced pairs
	uniqueAssets := make(map[string]bool)
	for _, s := range symbols {
		ts, err := domain.ParseSymbol(s)
		if err != nil {
			continue
		}
		uniqueAssets[ts.Base] = true
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent downloads

	for asset := range uniqueAssets {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			info := &domain.AssetInfo{
				Symbol: sym,
				Name:   sym, // Default to symbol until dynamic lookup
			}

			// Preserve cached fields when the asset already exists
			if existing, _ := b.Storage.GetAsset(sym); existing != nil {
				info.Name = existing.Name
				info.IconPath = existing.IconPath
				info.LastSyncedAt = existing.LastSyncedAt
			}

			if err := b.Storage.UpsertAsset(info); err != nil {
				slog.Error("Failed to upsert asset", slog.String("symbol", sym), slog.Any("error", err))
			}

			// Download icon (if missing)
			path, err := b.Icons.FetchIcon(sym)
			if err != nil {
				slog.Warn("Failed to fetch icon", slog.String("symbol", sym), slog.Any("error", err))
			} else if path != "" {
				info.IconPath = path
				info.LastSyncedAt = time.Now()
				b.Storage.UpsertAsset(info)
			}
		}(asset)
	}

	wg.Wait()
	slog.Info("Asset synchronization completed")
}
