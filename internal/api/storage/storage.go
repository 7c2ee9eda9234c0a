package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cedarshop/indexing-be/internal/api/model"
	"github.com/cedarshop/indexing-be/internal/worker/domain"
	"github.com/cedarshop/indexing-be/shared/postgresql"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// EnqueueURLs upserts URLs with the given priority. Conflicting URLs are
// skipped so existing items keep their status and retry state.
func (s *Storage) EnqueueURLs(ctx context.Context, urls []string, priority string) (int, error) {
	query := `
		INSERT INTO queue_items (id, url, status, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO NOTHING
	`

	priority = domain.NormalizePriority(priority)

	inserted := 0
	for _, url := range urls {
		if url == "" {
			continue
		}

		result, err := s.db.ExecContext(ctx, query,
			uuid.New().String(),
			url,
			domain.StatusPending,
			priority,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to enqueue url: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(rows)
	}

	return inserted, nil
}

// Stats returns the number of queue items per status
func (s *Storage) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM queue_items GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stats rows: %w", err)
	}

	return stats, nil
}

type ItemFilter struct {
	Status   string
	PageSize int
	Cursor   *ItemCursor
}

type ItemCursor struct {
	CreatedAt time.Time
	ID        string
}

// ListItems returns queue items newest first with keyset pagination
func (s *Storage) ListItems(ctx context.Context, filter ItemFilter) ([]model.QueueItem, error) {
	query := `
        SELECT id, url, status, priority, publish_attempted_at, next_retry_at,
               last_error, response_status, created_at, updated_at
        FROM queue_items
        WHERE 1=1
    `
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var items []model.QueueItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}

	return items, nil
}

// DeleteItem removes a queue item. Returns false when no row matched.
func (s *Storage) DeleteItem(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete queue item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}
