// Package service holds the synchronization pipelines: order sync, market
// resolution and historical price ingestion. Services are plain structs over
// injected collaborators so each pipeline stays independently testable.
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

// SyncMode selects how the fetch window is derived.
type SyncMode string

const (
	SyncModeAll    SyncMode = "ALL"    // backfill older than the oldest order on file
	SyncModeRecent SyncMode = "RECENT" // catch up newer than the newest order on file
	SyncModeRange  SyncMode = "RANGE"  // explicit user-supplied window
)

// windowFloor bounds ALL-mode backfill. No traded history predates the first
// public bitcoin exchange going live.
var windowFloor = time.Date(2010, 7, 17, 0, 0, 0, 0, time.UTC)

const dateLayout = "2006-01-02"

// OrderSyncRequest is the command surface input for one sync pass.
type OrderSyncRequest struct {
	CredentialID string   `validate:"required"`
	Mode         SyncMode `validate:"required,oneof=ALL RECENT RANGE"`
	StartDate    string   `validate:"omitempty,datetime=2006-01-02"`
	EndDate      string   `validate:"omitempty,datetime=2006-01-02"`
}

// AdapterFactory builds the adapter for a credential. Indirected so tests can
// hand back fakes.
type AdapterFactory func(cred *domain.Credential) (exchange.Adapter, error)

// OrderSync is the order synchronization pipeline.
type OrderSync struct {
	orders     domain.OrderStore
	creds      domain.CredentialStore
	newAdapter AdapterFactory
	validate   *validator.Validate
	now        func() time.Time
	logger     *slog.Logger
}

// NewOrderSync wires the pipeline over its collaborators.
func NewOrderSync(orders domain.OrderStore, creds domain.CredentialStore, factory AdapterFactory) *OrderSync {
	return &OrderSync{
		orders:     orders,
		creds:      creds,
		newAdapter: factory,
		validate:   validator.New(),
		now:        time.Now,
		logger:     slog.Default().With("module", "order_sync"),
	}
}

// Run executes one sync pass: resolve the window, drive the adapter's paged
// retrieval to completion, deduplicate against storage and persist only the
// new orders. Persistence is all-or-nothing: a page failure discards the
// partial result, which is safe to retry because inserts are deduplicated.
func (s *OrderSync) Run(ctx context.Context, req OrderSyncRequest) (domain.SyncSummary, error) {
	var summary domain.SyncSummary

	if err := s.validateRequest(req); err != nil {
		return summary, err
	}

	cred, err := s.creds.GetCredential(req.CredentialID)
	if err != nil {
		return summary, fmt.Errorf("load credential: %w", err)
	}
	if cred == nil {
		return summary, &domain.ValidationError{
			Field: "CredentialID",
			Err:   fmt.Errorf("unknown credential %q", req.CredentialID),
		}
	}
	if cred.IsRevoked() {
		return summary, domain.ErrCredentialRevoked
	}

	adapter, err := s.newAdapter(cred)
	if err != nil {
		return summary, err
	}

	window, err := s.resolveWindow(req, cred)
	if err != nil {
		return summary, err
	}

	s.logger.Info("sync window resolved",
		slog.String("credential", cred.ID),
		slog.String("exchange", string(cred.Exchange)),
		slog.String("mode", string(req.Mode)),
		slog.Time("start", window.Start),
		slog.Time("end", window.End),
	)

	fetched, err := adapter.SyncOrders(ctx, window.Start, window.End)
	if err != nil {
		infra.GlobalMetrics.RecordError()
		return summary, fmt.Errorf("sync %s orders: %w", cred.Exchange, err)
	}

	existing, err := s.orders.FindOrders(domain.OrderFilter{CredentialID: cred.ID})
	if err != nil {
		return summary, fmt.Errorf("load persisted orders: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, o := range existing {
		seen[o.OrderID] = true
	}

	var fresh []domain.Order
	for _, o := range fetched {
		if seen[o.OrderID] {
			summary.SkippedCount++
			summary.SkippedIDs = append(summary.SkippedIDs, o.OrderID)
			continue
		}
		seen[o.OrderID] = true // exchanges can repeat records across pages
		o.OwnerID = cred.OwnerID
		o.CredentialID = cred.ID
		fresh = append(fresh, o)
		summary.SavedIDs = append(summary.SavedIDs, o.OrderID)
	}

	if len(fresh) > 0 {
		inserted, err := s.orders.InsertOrders(fresh)
		if err != nil {
			return domain.SyncSummary{}, fmt.Errorf("persist orders: %w", err)
		}
		summary.SavedCount = inserted
		infra.GlobalMetrics.RecordOrdersSaved(uint64(inserted))
	}

	s.logger.Info("sync finished",
		slog.String("credential", cred.ID),
		slog.Int("saved", summary.SavedCount),
		slog.Int("skipped", summary.SkippedCount),
	)
	return summary, nil
}

// validateRequest fails fast on malformed input, before any network call.
func (s *OrderSync) validateRequest(req OrderSyncRequest) error {
	if err := s.validate.Struct(req); err != nil {
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

	if req.Mode == SyncModeRange {
		if req.StartDate == "" {
			return &domain.ValidationError{Field: "StartDate", Err: errors.New("required for RANGE mode")}
		}
		if req.EndDate == "" {
			return &domain.ValidationError{Field: "EndDate", Err: errors.New("required for RANGE mode")}
		}
		start, _ := time.Parse(dateLayout, req.StartDate)
		end, _ := time.Parse(dateLayout, req.EndDate)
		if !start.Before(end) {
			return &domain.ValidationError{Field: "StartDate", Err: errors.New("start must precede end")}
		}
	}
	return nil
}

// resolveWindow derives the [start, end) range for this pass.
func (s *OrderSync) resolveWindow(req OrderSyncRequest, cred *domain.Credential) (domain.FetchWindow, error) {
	switch req.Mode {
	case SyncModeAll:
		// Backfill: walk older than anything on file, exactly once per range.
		end := s.now()
		if oldest, err := s.orders.OldestOrder(cred.ID); err != nil {
			return domain.FetchWindow{}, err
		} else if oldest != nil {
			end = oldest.Datetime
		}
		return domain.FetchWindow{Start: windowFloor, End: end}, nil

	case SyncModeRecent:
		start := windowFloor
		if newest, err := s.orders.NewestOrder(cred.ID); err != nil {
			return domain.FetchWindow{}, err
		} else if newest != nil {
			start = newest.Datetime
		}
		return domain.FetchWindow{Start: start, End: s.now()}, nil

	case SyncModeRange:
		start, _ := time.Parse(dateLayout, req.StartDate)
		end, _ := time.Parse(dateLayout, req.EndDate)
		return domain.FetchWindow{Start: start, End: end}, nil

	default:
		return domain.FetchWindow{}, &domain.ValidationError{
			Field: "Mode",
			Err:   fmt.Errorf("unknown sync mode %q", req.Mode),
		}
	}
}
