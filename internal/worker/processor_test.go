package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cedarshop/indexing-be/internal/indexing"
	"github.com/cedarshop/indexing-be/internal/worker/domain"
)

// fakeStore is an in-memory Store that records every transition
type fakeStore struct {
	attemptsUsed int
	attemptsErr  error

	items      []domain.QueueItem
	claimErr   error
	claimCalls []int

	attempted    []string
	attemptedErr map[string]error
	completed    []string
	retries      map[string]time.Time
	retryErrors  map[string]string
	failed       map[string]string
	failedStatus map[string]*int
	released     []string
	releaseErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attemptedErr: make(map[string]error),
		retries:      make(map[string]time.Time),
		retryErrors:  make(map[string]string),
		failed:       make(map[string]string),
		failedStatus: make(map[string]*int),
	}
}

func (s *fakeStore) AttemptsSince(ctx context.Context, since time.Time) (int, error) {
	return s.attemptsUsed, s.attemptsErr
}

func (s *fakeStore) ClaimEligible(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	s.claimCalls = append(s.claimCalls, limit)
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if limit < len(s.items) {
		return s.items[:limit], nil
	}
	return s.items, nil
}

func (s *fakeStore) MarkAttempted(ctx context.Context, id string, at time.Time) error {
	if err := s.attemptedErr[id]; err != nil {
		return err
	}
	s.attempted = append(s.attempted, id)
	return nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, id string) error {
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeStore) ScheduleRetry(ctx context.Context, id string, retryAt time.Time, errMsg string, responseStatus int) error {
	s.retries[id] = retryAt
	s.retryErrors[id] = errMsg
	return nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, id string, errMsg string, responseStatus *int) error {
	s.failed[id] = errMsg
	s.failedStatus[id] = responseStatus
	return nil
}

func (s *fakeStore) Release(ctx context.Context, ids []string) error {
	if s.releaseErr != nil {
		return s.releaseErr
	}
	s.released = append(s.released, ids...)
	return nil
}

// fakeNotifier maps URLs to publish outcomes and records call order
type fakeNotifier struct {
	responses map[string]error
	calls     []string
}

func (n *fakeNotifier) Publish(ctx context.Context, url string) error {
	n.calls = append(n.calls, url)
	return n.responses[url]
}

func testItems(n int) []domain.QueueItem {
	items := make([]domain.QueueItem, n)
	for i := range items {
		items[i] = domain.QueueItem{
			ID:       string(rune('a' + i)),
			URL:      "https://shop.example.com/products/" + string(rune('a'+i)),
			Status:   domain.StatusProcessing,
			Priority: domain.PriorityNormal,
		}
	}
	return items
}

func newTestProcessor(store Store, notifier Notifier, dailyLimit, batchSize int) *Processor {
	return NewProcessor(&Config{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:        store,
		Notifier:     notifier,
		DailyLimit:   dailyLimit,
		BatchSize:    batchSize,
		QuotaWindow:  24 * time.Hour,
		RetryBackoff: 8 * time.Hour,
	})
}

func TestProcessBatch_QuotaExhausted(t *testing.T) {
	store := newFakeStore()
	store.attemptsUsed = 200
	notifier := &fakeNotifier{}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.True(t, result.QuotaStop)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, "daily quota exhausted, no items claimed", result.Message)
	assert.Empty(t, store.claimCalls, "nothing should be claimed when quota is gone")
	assert.Empty(t, notifier.calls)
}

func TestProcessBatch_ClaimBoundedByRemainingQuota(t *testing.T) {
	store := newFakeStore()
	store.attemptsUsed = 197
	store.items = testItems(10)
	notifier := &fakeNotifier{responses: map[string]error{}}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, store.claimCalls, 1)
	assert.Equal(t, 3, store.claimCalls[0], "claim size must be min(limit, remaining quota)")
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.SuccessCount)
}

func TestProcessBatch_EmptyQueue(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Processed)
	assert.False(t, result.QuotaStop)
	assert.Equal(t, "no eligible items in queue", result.Message)
}

func TestProcessBatch_AllSucceed(t *testing.T) {
	store := newFakeStore()
	store.items = testItems(3)
	notifier := &fakeNotifier{responses: map[string]error{}}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 0, result.FailCount)
	assert.Len(t, store.completed, 3)
	assert.Len(t, notifier.calls, 3)

	// Every item is stamped attempted before its publish call
	assert.Len(t, store.attempted, 3)
}

func TestProcessBatch_QuotaHitMidBatch(t *testing.T) {
	store := newFakeStore()
	store.items = testItems(5)
	notifier := &fakeNotifier{responses: map[string]error{
		store.items[0].URL: &indexing.StatusError{Code: 429, Message: "Quota exceeded"},
	}}

	p := newTestProcessor(store, notifier, 200, 10)

	attemptedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return attemptedAt }

	result, err := p.ProcessBatch(context.Background(), 5)
	require.NoError(t, err)

	// Only the first item is attempted; the rest go back untouched
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.FailCount)
	assert.Equal(t, 1, result.RetryCount)
	assert.Equal(t, 4, result.Released)
	assert.True(t, result.QuotaStop)

	assert.Len(t, notifier.calls, 1)
	assert.ElementsMatch(t, []string{"b", "c", "d", "e"}, store.released)

	retryAt, ok := store.retries["a"]
	require.True(t, ok)
	assert.Equal(t, attemptedAt.Add(8*time.Hour), retryAt)
}

func TestProcessBatch_HardFailureIsTerminal(t *testing.T) {
	store := newFakeStore()
	store.items = testItems(2)
	notifier := &fakeNotifier{responses: map[string]error{
		store.items[0].URL: &indexing.StatusError{Code: 500, Message: "Internal error"},
	}}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	// A non-quota failure never stops the batch
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailCount)
	assert.Equal(t, 0, result.RetryCount)
	assert.False(t, result.QuotaStop)
	assert.Empty(t, store.released)

	msg, ok := store.failed["a"]
	require.True(t, ok)
	assert.Contains(t, msg, "500")

	require.NotNil(t, store.failedStatus["a"])
	assert.Equal(t, 500, *store.failedStatus["a"])
}

func TestProcessBatch_TransportErrorHasNoStatus(t *testing.T) {
	store := newFakeStore()
	store.items = testItems(1)
	notifier := &fakeNotifier{responses: map[string]error{
		store.items[0].URL: errors.New("connection refused"),
	}}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FailCount)
	assert.Nil(t, store.failedStatus["a"])
	assert.Equal(t, "connection refused", store.failed["a"])
}

func TestProcessBatch_QuotaReadErrorAborts(t *testing.T) {
	store := newFakeStore()
	store.attemptsErr = errors.New("db down")
	notifier := &fakeNotifier{}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, notifier.calls)
}

func TestProcessBatch_ClaimErrorAborts(t *testing.T) {
	store := newFakeStore()
	store.claimErr = errors.New("db down")
	notifier := &fakeNotifier{}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestProcessBatch_MarkAttemptedFailureSkipsPublish(t *testing.T) {
	store := newFakeStore()
	store.items = testItems(2)
	store.attemptedErr["a"] = errors.New("row vanished")
	notifier := &fakeNotifier{responses: map[string]error{}}

	p := newTestProcessor(store, notifier, 200, 10)

	result, err := p.ProcessBatch(context.Background(), 10)
	require.NoError(t, err)

	// The item whose attempt could not be stamped is never sent out
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailCount)
	assert.Equal(t, []string{store.items[1].URL}, notifier.calls)
}

func TestProcessBatch_DefaultLimitUsesBatchSize(t *testing.T) {
	store := newFakeStore()
	store.items = testItems(10)
	notifier := &fakeNotifier{responses: map[string]error{}}

	p := newTestProcessor(store, notifier, 200, 4)

	result, err := p.ProcessBatch(context.Background(), 0)
	require.NoError(t, err)

	require.Len(t, store.claimCalls, 1)
	assert.Equal(t, 4, store.claimCalls[0])
	assert.Equal(t, 4, result.Processed)
}
