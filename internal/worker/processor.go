package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cedarshop/indexing-be/internal/indexing"
	"github.com/cedarshop/indexing-be/internal/worker/domain"
)

// Store is the queue storage surface the processor drives
type Store interface {
	QuotaStore
	ClaimEligible(ctx context.Context, limit int) ([]domain.QueueItem, error)
	MarkAttempted(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string) error
	ScheduleRetry(ctx context.Context, id string, retryAt time.Time, errMsg string, responseStatus int) error
	MarkFailed(ctx context.Context, id string, errMsg string, responseStatus *int) error
	Release(ctx context.Context, ids []string) error
}

// Notifier announces a single URL to the external indexing API.
// A nil return means the API acknowledged the notification.
type Notifier interface {
	Publish(ctx context.Context, url string) error
}

// Config holds processor configuration
type Config struct {
	Logger       *slog.Logger
	Store        Store
	Notifier     Notifier
	DailyLimit   int
	BatchSize    int
	QuotaWindow  time.Duration
	RetryBackoff time.Duration
}

// Processor runs one claim-and-dispatch cycle at a time. Overlapping cycles
// are safe because reservation happens inside the store's atomic claim, not
// in process memory.
type Processor struct {
	logger       *slog.Logger
	store        Store
	notifier     Notifier
	quota        *QuotaTracker
	batchSize    int
	retryBackoff time.Duration
	now          func() time.Time
}

// BatchResult summarizes one processing cycle
type BatchResult struct {
	Processed    int    `json:"processed"`
	SuccessCount int    `json:"success_count"`
	FailCount    int    `json:"fail_count"`
	RetryCount   int    `json:"retry_count"`
	Released     int    `json:"released"`
	QuotaStop    bool   `json:"quota_stop"`
	Message      string `json:"message"`
}

// NewProcessor creates a batch processor
func NewProcessor(cfg *Config) *Processor {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 8 * time.Hour
	}

	return &Processor{
		logger:       cfg.Logger,
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		quota:        NewQuotaTracker(cfg.Store, cfg.DailyLimit, cfg.QuotaWindow),
		batchSize:    batchSize,
		retryBackoff: retryBackoff,
		now:          time.Now,
	}
}

// ProcessBatch claims up to min(limit, quota remaining) eligible items and
// dispatches them strictly sequentially. Per-item failures are recorded on
// the item and never returned as errors; only setup failures (quota read,
// claim) abort the cycle.
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = p.batchSize
	}

	remaining, err := p.quota.Remaining(ctx)
	if err != nil {
		return nil, err
	}

	claimSize := limit
	if remaining < claimSize {
		claimSize = remaining
	}

	if claimSize <= 0 {
		p.logger.Info("Daily quota exhausted, nothing claimed")
		return &BatchResult{
			QuotaStop: true,
			Message:   "daily quota exhausted, no items claimed",
		}, nil
	}

	items, err := p.store.ClaimEligible(ctx, claimSize)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return &BatchResult{Message: "no eligible items in queue"}, nil
	}

	p.logger.Info("Dispatching claimed batch",
		slog.Int("claimed", len(items)),
		slog.Int("quota_remaining", remaining),
	)

	result := &BatchResult{}
	quotaHit := false
	var releaseIDs []string

	for _, item := range items {
		if quotaHit {
			// Quota is gone for this window, attempting the rest only
			// burns calls. Return them to the pool without penalty.
			releaseIDs = append(releaseIDs, item.ID)
			continue
		}

		p.dispatchOne(ctx, item, result, &quotaHit)
	}

	if len(releaseIDs) > 0 {
		if err := p.store.Release(ctx, releaseIDs); err != nil {
			p.logger.Error("Failed to release unattempted items",
				slog.Int("count", len(releaseIDs)),
				slog.Any("error", err),
			)
		} else {
			result.Released = len(releaseIDs)
		}
	}

	result.QuotaStop = quotaHit
	result.Message = p.summarize(result)

	p.logger.Info("Processing cycle finished",
		slog.Int("processed", result.Processed),
		slog.Int("success_count", result.SuccessCount),
		slog.Int("fail_count", result.FailCount),
		slog.Int("retry_count", result.RetryCount),
		slog.Int("released", result.Released),
		slog.Bool("quota_stop", result.QuotaStop),
	)

	return result, nil
}

// dispatchOne runs a single item through the notify call and records the
// resulting state transition
func (p *Processor) dispatchOne(ctx context.Context, item domain.QueueItem, result *BatchResult, quotaHit *bool) {
	attemptedAt := p.now()

	// Stamp the attempt before calling out so quota accounting still
	// covers calls that fail or crash mid-flight.
	if err := p.store.MarkAttempted(ctx, item.ID, attemptedAt); err != nil {
		p.logger.Error("Failed to record attempt timestamp",
			slog.String("item_id", item.ID),
			slog.String("url", item.URL),
			slog.Any("error", err),
		)
		result.Processed++
		result.FailCount++
		return
	}

	result.Processed++
	err := p.notifier.Publish(ctx, item.URL)

	switch {
	case err == nil:
		if updateErr := p.store.MarkCompleted(ctx, item.ID); updateErr != nil {
			p.logger.Error("Failed to mark item completed",
				slog.String("item_id", item.ID),
				slog.Any("error", updateErr),
			)
			result.FailCount++
			return
		}

		result.SuccessCount++
		p.logger.Info("URL announced",
			slog.String("url", item.URL),
		)

	case indexing.IsQuotaExceeded(err):
		retryAt := attemptedAt.Add(p.retryBackoff)
		if updateErr := p.store.ScheduleRetry(ctx, item.ID, retryAt, err.Error(), 429); updateErr != nil {
			p.logger.Error("Failed to schedule retry",
				slog.String("item_id", item.ID),
				slog.Any("error", updateErr),
			)
		}

		result.RetryCount++
		*quotaHit = true
		p.logger.Warn("Indexing API quota exceeded, deferring item",
			slog.String("url", item.URL),
			slog.Time("next_retry_at", retryAt),
		)

	default:
		var responseStatus *int
		var statusErr *indexing.StatusError
		if errors.As(err, &statusErr) {
			responseStatus = &statusErr.Code
		}

		if updateErr := p.store.MarkFailed(ctx, item.ID, err.Error(), responseStatus); updateErr != nil {
			p.logger.Error("Failed to mark item failed",
				slog.String("item_id", item.ID),
				slog.Any("error", updateErr),
			)
		}

		result.FailCount++
		p.logger.Error("URL announcement failed",
			slog.String("url", item.URL),
			slog.Any("error", err),
		)
	}
}

// summarize builds the human-readable cycle summary
func (p *Processor) summarize(result *BatchResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "processed %d items: %d succeeded, %d failed",
		result.Processed, result.SuccessCount, result.FailCount)

	if result.RetryCount > 0 {
		fmt.Fprintf(&b, ", %d deferred for retry", result.RetryCount)
	}

	if result.QuotaStop {
		fmt.Fprintf(&b, " (quota exhausted mid-batch, released %d unattempted items)", result.Released)
	}

	return b.String()
}
