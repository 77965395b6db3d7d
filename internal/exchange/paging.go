package exchange

import (
	"context"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
	"github.com/itsoneohone/prismaview-sub000/internal/infra"
)

// SleepFunc waits for d or until ctx is done. Injected in tests so
// rate-limit spacing can be asserted without real delays.
type SleepFunc func(ctx context.Context, d time.Duration)

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// fetchPageFunc fetches one page. offset is the running record offset;
// last is the terminal record of the previous page (nil on the first page)
// for cursor-paging exchanges.
type fetchPageFunc[T any] func(ctx context.Context, offset int, last *T) ([]T, error)

// paginate drives a native pagination to completion: fetch a page, and while
// the page comes back full, wait rateLimit and fetch the next one. Pages are
// concatenated in arrival order. The rate limit is a hard external constraint,
// so the wait sits between every pair of consecutive requests. Cancellation is
// cooperative, checked once per page boundary. On failure the records fetched
// so far are returned alongside the tagged error.
func paginate[T any](ctx context.Context, ex domain.ExchangeID, pageSize int, rateLimit time.Duration, sleep SleepFunc, fetch fetchPageFunc[T]) ([]T, error) {
	var all []T
	var last *T

	for {
		if err := ctx.Err(); err != nil {
			return all, domain.NewExchangeError(ex, domain.ErrClassNetwork, "paginate", err)
		}

		page, err := fetch(ctx, len(all), last)
		if err != nil {
			return all, err
		}
		infra.GlobalMetrics.RecordPage(len(page))

		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}

		last = &page[len(page)-1]
		sleep(ctx, rateLimit)
	}
}
