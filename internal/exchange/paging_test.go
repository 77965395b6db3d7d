package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itsoneohone/prismaview-sub000/internal/domain"
)

// recordingSleeper counts inter-page waits without actually sleeping.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) {
	r.delays = append(r.delays, d)
}

func TestPaginate_ThreePages(t *testing.T) {
	const pageSize = 50
	pages := [][]int{makeRange(0, 50), makeRange(50, 100), makeRange(100, 112)}
	sleeper := &recordingSleeper{}

	var fetched int
	got, err := paginate(context.Background(), domain.ExchangeKraken, pageSize, 3*time.Second, sleeper.sleep,
		func(ctx context.Context, offset int, last *int) ([]int, error) {
			if fetched >= len(pages) {
				t.Fatalf("fetched page %d beyond the final short page", fetched)
			}
			if offset != fetched*pageSize {
				t.Errorf("page %d offset = %d, want %d", fetched, offset, fetched*pageSize)
			}
			page := pages[fetched]
			fetched++
			return page, nil
		})
	if err != nil {
		t.Fatalf("paginate failed: %v", err)
	}

	if len(got) != 112 {
		t.Fatalf("got %d records, want 112", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("record %d = %d, arrival order not preserved", i, v)
		}
	}

	// Exactly one mandatory delay between each pair of consecutive requests.
	if len(sleeper.delays) != 2 {
		t.Fatalf("got %d inter-page delays, want 2", len(sleeper.delays))
	}
	for _, d := range sleeper.delays {
		if d != 3*time.Second {
			t.Errorf("delay = %v, want rate limit 3s", d)
		}
	}
}

func TestPaginate_CursorIsTerminalRecord(t *testing.T) {
	const pageSize = 2
	sleeper := &recordingSleeper{}

	var cursors []*int
	_, err := paginate(context.Background(), domain.ExchangeBinance, pageSize, time.Second, sleeper.sleep,
		func(ctx context.Context, offset int, last *int) ([]int, error) {
			cursors = append(cursors, last)
			if len(cursors) == 3 {
				return []int{5}, nil // short page ends the walk
			}
			return []int{offset, offset + 1}, nil
		})
	if err != nil {
		t.Fatalf("paginate failed: %v", err)
	}

	if cursors[0] != nil {
		t.Error("first page must start without a cursor")
	}
	if cursors[1] == nil || *cursors[1] != 1 {
		t.Errorf("second page cursor = %v, want terminal record 1", cursors[1])
	}
	if cursors[2] == nil || *cursors[2] != 3 {
		t.Errorf("third page cursor = %v, want terminal record 3", cursors[2])
	}
}

func TestPaginate_FailureKeepsPartialPages(t *testing.T) {
	const pageSize = 2
	boom := domain.NewExchangeError(domain.ExchangeKraken, domain.ErrClassNetwork, "fetch", errors.New("socket reset"))
	sleeper := &recordingSleeper{}

	page := 0
	got, err := paginate(context.Background(), domain.ExchangeKraken, pageSize, time.Second, sleeper.sleep,
		func(ctx context.Context, offset int, last *int) ([]int, error) {
			page++
			if page == 2 {
				return nil, boom
			}
			return []int{offset, offset + 1}, nil
		})

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the tagged page failure", err)
	}
	if len(got) != 2 {
		t.Errorf("partial result has %d records, want the 2 already fetched", len(got))
	}
}

func TestPaginate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := paginate(ctx, domain.ExchangeKraken, 10, time.Second, (&recordingSleeper{}).sleep,
		func(ctx context.Context, offset int, last *int) ([]int, error) {
			t.Fatal("fetch must not run after cancellation")
			return nil, nil
		})
	if domain.ErrorClassOf(err) != domain.ErrClassNetwork {
		t.Errorf("cancellation should surface as a tagged network-class error, got %v", err)
	}
}

func makeRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
