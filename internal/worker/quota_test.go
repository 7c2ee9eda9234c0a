package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quotaStoreFunc adapts a function to the QuotaStore interface
type quotaStoreFunc func(ctx context.Context, since time.Time) (int, error)

func (f quotaStoreFunc) AttemptsSince(ctx context.Context, since time.Time) (int, error) {
	return f(ctx, since)
}

func TestQuotaTracker_Remaining(t *testing.T) {
	tests := []struct {
		name       string
		dailyLimit int
		used       int
		want       int
	}{
		{name: "nothing used", dailyLimit: 200, used: 0, want: 200},
		{name: "partially used", dailyLimit: 200, used: 150, want: 50},
		{name: "exactly exhausted", dailyLimit: 200, used: 200, want: 0},
		{name: "overshoot floors at zero", dailyLimit: 200, used: 250, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := quotaStoreFunc(func(ctx context.Context, since time.Time) (int, error) {
				return tt.used, nil
			})

			tracker := NewQuotaTracker(store, tt.dailyLimit, 24*time.Hour)

			remaining, err := tracker.Remaining(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, remaining)
		})
	}
}

func TestQuotaTracker_WindowStart(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var gotSince time.Time
	store := quotaStoreFunc(func(ctx context.Context, since time.Time) (int, error) {
		gotSince = since
		return 0, nil
	})

	tracker := NewQuotaTracker(store, 200, 24*time.Hour)
	tracker.now = func() time.Time { return now }

	_, err := tracker.Remaining(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now.Add(-24*time.Hour), gotSince, "window must roll with the clock, not reset at midnight")
}

func TestQuotaTracker_StoreError(t *testing.T) {
	store := quotaStoreFunc(func(ctx context.Context, since time.Time) (int, error) {
		return 0, errors.New("db down")
	})

	tracker := NewQuotaTracker(store, 200, 24*time.Hour)

	_, err := tracker.Remaining(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compute quota usage")
}

func TestNewQuotaTracker_DefaultWindow(t *testing.T) {
	tracker := NewQuotaTracker(nil, 200, 0)
	assert.Equal(t, 24*time.Hour, tracker.window)
}
