package worker

import (
	"context"
	"fmt"
	"time"
)

// QuotaStore is the slice of the queue store that quota tracking reads
type QuotaStore interface {
	AttemptsSince(ctx context.Context, since time.Time) (int, error)
}

// QuotaTracker computes the remaining call budget over a rolling window.
// The budget is derived from attempt timestamps on every read rather than
// kept as a mutable counter, so it can never drift or need a midnight reset.
type QuotaTracker struct {
	store      QuotaStore
	dailyLimit int
	window     time.Duration
	now        func() time.Time
}

// NewQuotaTracker creates a quota tracker over the given store
func NewQuotaTracker(store QuotaStore, dailyLimit int, window time.Duration) *QuotaTracker {
	if window <= 0 {
		window = 24 * time.Hour
	}

	return &QuotaTracker{
		store:      store,
		dailyLimit: dailyLimit,
		window:     window,
		now:        time.Now,
	}
}

// Remaining returns the number of calls still allowed inside the current
// window, floored at zero
func (q *QuotaTracker) Remaining(ctx context.Context) (int, error) {
	used, err := q.store.AttemptsSince(ctx, q.now().Add(-q.window))
	if err != nil {
		return 0, fmt.Errorf("failed to compute quota usage: %w", err)
	}

	remaining := q.dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}
