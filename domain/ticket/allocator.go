package ticket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/7FIl/CS-Bot/domain/infra"
)

const (
	defaultFreshness = 5 * time.Second
	defaultWindow    = 50
)

// Allocator hands out ticket numbers. It is a best-effort monotonic
// counter, not a linearizable sequence: the backing store has no atomic
// increment, so two processes allocating inside the same freshness window
// can in principle collide. Within one process the mutex keeps numbers
// strictly increasing.
type Allocator struct {
	ds        infra.Datastore
	freshness time.Duration
	window    int

	mu           sync.Mutex
	lastAssigned int64
	fetchedAt    time.Time
}

func NewAllocator(ds infra.Datastore) *Allocator {
	return &Allocator{
		ds:        ds,
		freshness: defaultFreshness,
		window:    defaultWindow,
	}
}

// Next returns the next ticket number. While the cached maximum is fresh it
// advances optimistically without touching the store; otherwise it scans
// only the tail window of the ticket-number column. A store failure falls
// back to the last assigned value plus one, or 1 on a cold start.
func (a *Allocator) Next(ctx context.Context) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastAssigned > 0 && time.Since(a.fetchedAt) < a.freshness {
		a.lastAssigned++
		return a.lastAssigned
	}

	numbers, err := a.ds.RecentTicketNumbers(ctx, a.window)
	if err != nil {
		slog.Warn("ticket number lookup failed, falling back to cached counter",
			slog.Int64("last_assigned", a.lastAssigned), slog.Any("err", err))
		if a.lastAssigned > 0 {
			a.lastAssigned++
			return a.lastAssigned
		}
		a.lastAssigned = 1
		return a.lastAssigned
	}

	var max int64
	for _, n := range numbers {
		if n > max {
			max = n
		}
	}
	// Never regress below a number this process already handed out.
	if a.lastAssigned > max {
		max = a.lastAssigned
	}
	a.lastAssigned = max + 1
	a.fetchedAt = time.Now()
	return a.lastAssigned
}
