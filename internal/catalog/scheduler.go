package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cedarshop/indexing-be/internal/worker/domain"
)

// CandidateSource yields catalog entries that need (re-)announcement
type CandidateSource interface {
	ClaimFresh(ctx context.Context, limit int) ([]FreshCandidate, error)
}

// Enqueuer adds URLs to the announcement queue
type Enqueuer interface {
	Enqueue(ctx context.Context, items []domain.NewItem) (int, error)
}

// Scheduler turns fresh catalog candidates into queued canonical URLs
type Scheduler struct {
	source  CandidateSource
	queue   Enqueuer
	baseURL string
	logger  *slog.Logger
}

// NewScheduler creates a freshness scheduler
func NewScheduler(source CandidateSource, queue Enqueuer, baseURL string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:  source,
		queue:   queue,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// ScheduleFresh claims up to limit fresh candidates from the catalog and
// enqueues their canonical URLs with the catalog-supplied priority.
// An empty candidate set is a normal result, not an error.
func (s *Scheduler) ScheduleFresh(ctx context.Context, limit int) (int, error) {
	candidates, err := s.source.ClaimFresh(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to collect fresh candidates: %w", err)
	}

	if len(candidates) == 0 {
		s.logger.Debug("No fresh candidates to schedule")
		return 0, nil
	}

	items := make([]domain.NewItem, 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, domain.NewItem{
			URL:      s.ProductURL(candidate),
			Priority: candidate.Priority,
		})
	}

	enqueued, err := s.queue.Enqueue(ctx, items)
	if err != nil {
		return enqueued, fmt.Errorf("failed to enqueue fresh candidates: %w", err)
	}

	s.logger.Info("Fresh candidates scheduled",
		slog.Int("claimed", len(candidates)),
		slog.Int("enqueued", enqueued),
	)

	return enqueued, nil
}

// ProductURL builds the canonical product URL from the slug, falling back
// to the product id when no slug is set
func (s *Scheduler) ProductURL(candidate FreshCandidate) string {
	ref := candidate.ID
	if candidate.Slug.Valid && candidate.Slug.String != "" {
		ref = candidate.Slug.String
	}

	return s.baseURL + "/products/" + ref
}
