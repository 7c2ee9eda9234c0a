package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// FreshCandidate is a catalog product flagged as needing (re-)announcement
type FreshCandidate struct {
	ID       string         `db:"id"`
	Slug     sql.NullString `db:"slug"`
	Priority string         `db:"index_priority"`
}

// Storage claims fresh candidates against the catalog's own change tracking
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a catalog storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimFresh atomically flips the needs_indexing flag on up to limit
// published products and returns them. The single-statement reservation
// with FOR UPDATE SKIP LOCKED keeps overlapping scheduler runs from
// claiming the same product twice.
func (s *Storage) ClaimFresh(ctx context.Context, limit int) ([]FreshCandidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		UPDATE products
		SET needs_indexing = FALSE, updated_at = NOW()
		WHERE id IN (
			SELECT id
			FROM products
			WHERE needs_indexing AND published_at IS NOT NULL
			ORDER BY updated_at DESC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, slug, index_priority
	`

	var candidates []FreshCandidate
	if err := s.db.SelectContext(ctx, &candidates, query, limit); err != nil {
		return nil, fmt.Errorf("failed to claim fresh candidates: %w", err)
	}

	s.logger.Info("Claimed fresh catalog candidates",
		slog.Int("requested", limit),
		slog.Int("claimed", len(candidates)),
	)

	return candidates, nil
}
