package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cedarshop/indexing-be/internal/worker/domain"
)

// Storage handles all database operations for the queue engine
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// Enqueue upserts URLs into the queue. URLs already present are left
// untouched, so re-enqueueing never resets completed or failed items.
// Returns the number of rows actually inserted.
func (s *Storage) Enqueue(ctx context.Context, items []domain.NewItem) (int, error) {
	query := `
		INSERT INTO queue_items (id, url, status, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING
	`

	inserted := 0
	for _, item := range items {
		if item.URL == "" {
			continue
		}

		result, err := s.db.ExecContext(ctx, query,
			uuid.New().String(),
			item.URL,
			domain.StatusPending,
			domain.NormalizePriority(item.Priority),
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to enqueue %s: %w", item.URL, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rows)
	}

	s.logger.Info("URLs enqueued",
		slog.Int("requested", len(items)),
		slog.Int("inserted", inserted),
	)

	return inserted, nil
}

// ClaimEligible atomically reserves up to limit eligible items for this run.
// Eligible means pending, or retry whose next_retry_at has passed. The
// reservation is a single statement with FOR UPDATE SKIP LOCKED so two
// overlapping runs can never claim the same row.
func (s *Storage) ClaimEligible(ctx context.Context, limit int) ([]domain.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		UPDATE queue_items
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id
			FROM queue_items
			WHERE status = $2
			   OR (status = $3 AND next_retry_at <= NOW())
			ORDER BY
				CASE priority WHEN 'high' THEN 0 WHEN 'normal' THEN 1 ELSE 2 END,
				created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, url, status, priority, publish_attempted_at, next_retry_at,
		          last_error, response_status, created_at, updated_at
	`

	var items []domain.QueueItem
	err := s.db.SelectContext(ctx, &items, query,
		domain.StatusProcessing,
		domain.StatusPending,
		domain.StatusRetry,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim eligible items: %w", err)
	}

	// RETURNING does not preserve the subquery ordering
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := domain.PriorityRank(items[i].Priority), domain.PriorityRank(items[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	s.logger.Info("Claimed eligible items",
		slog.Int("requested", limit),
		slog.Int("claimed", len(items)),
	)

	return items, nil
}

// AttemptsSince counts items whose latest dispatch attempt falls inside the
// quota window. Only the most recent attempt per URL is retained, so items
// retried more than once inside the window are undercounted. That is the
// intended trade: the estimate can only undercount, never overcount distinct
// URLs, and avoids a per-attempt log table.
func (s *Storage) AttemptsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM queue_items WHERE publish_attempted_at >= $1`,
		since,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}

	return count, nil
}

// MarkAttempted stamps the dispatch attempt time before the remote call so
// quota accounting covers attempts that crash mid-call
func (s *Storage) MarkAttempted(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET publish_attempted_at = $2, updated_at = NOW() WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark attempt: %w", err)
	}

	return s.requireRow(result, id)
}

// MarkCompleted transitions an item to completed and clears its error state
func (s *Storage) MarkCompleted(ctx context.Context, id string) error {
	query := `
		UPDATE queue_items
		SET status = $2,
		    last_error = NULL,
		    response_status = 200,
		    next_retry_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query, id, domain.StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}

	return s.requireRow(result, id)
}

// ScheduleRetry transitions an item to retry with a backoff deadline after a
// quota-exceeded response
func (s *Storage) ScheduleRetry(ctx context.Context, id string, retryAt time.Time, errMsg string, responseStatus int) error {
	query := `
		UPDATE queue_items
		SET status = $2,
		    next_retry_at = $3,
		    last_error = $4,
		    response_status = $5,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		id,
		domain.StatusRetry,
		retryAt,
		domain.TruncateError(errMsg),
		responseStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	return s.requireRow(result, id)
}

// MarkFailed transitions an item to the terminal failed state. responseStatus
// may be nil for transport errors that produced no HTTP response.
func (s *Storage) MarkFailed(ctx context.Context, id string, errMsg string, responseStatus *int) error {
	query := `
		UPDATE queue_items
		SET status = $2,
		    last_error = $3,
		    response_status = $4,
		    updated_at = NOW()
		WHERE id = $1
	`

	var status sql.NullInt32
	if responseStatus != nil {
		status = sql.NullInt32{Int32: int32(*responseStatus), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		id,
		domain.StatusFailed,
		domain.TruncateError(errMsg),
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}

	return s.requireRow(result, id)
}

// Release returns claimed-but-unattempted items to the eligible pool. Used
// when a quota hit mid-batch makes further dispatching pointless.
func (s *Storage) Release(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE queue_items
		SET status = $1, updated_at = NOW()
		WHERE id = ANY($2) AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StatusPending,
		pq.Array(ids),
		domain.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to release items: %w", err)
	}

	released, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("Released unattempted items back to pending",
		slog.Int("requested", len(ids)),
		slog.Int64("released", released),
	)

	return nil
}

// requireRow converts a zero-row update into ErrItemNotFound
func (s *Storage) requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Warn("Queue item update affected no rows",
			slog.String("item_id", id),
		)
		return domain.ErrItemNotFound
	}

	return nil
}
