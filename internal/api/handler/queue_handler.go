package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cedarshop/indexing-be/internal/api/dto"
	"github.com/cedarshop/indexing-be/internal/api/model"
	"github.com/cedarshop/indexing-be/internal/api/storage"
	"github.com/cedarshop/indexing-be/internal/worker/domain"
)

// AddURLs handles POST /api/v1/queue/urls
// Enqueues explicit URLs for announcement
func (h *QueueHandler) AddURLs(c *gin.Context) {
	var req dto.AddURLsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	enqueued, err := h.storage.EnqueueURLs(c.Request.Context(), req.URLs, req.Priority)
	if err != nil {
		h.logger.Error("Failed to enqueue URLs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue URLs",
		})
		return
	}

	if enqueued > 0 {
		h.publishWake(c.Request.Context(), "enqueue", enqueued)
	}

	c.JSON(http.StatusOK, dto.AddURLsResponse{
		Requested: len(req.URLs),
		Enqueued:  enqueued,
		Skipped:   len(req.URLs) - enqueued,
	})
}

// SeedSitemap handles POST /api/v1/queue/sitemap
// Seeds the queue from a sitemap document
func (h *QueueHandler) SeedSitemap(c *gin.Context) {
	var req dto.SeedSitemapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	entries, err := h.extractor.Fetch(c.Request.Context(), req.SitemapURL)
	if err != nil {
		h.logger.Error("Failed to fetch sitemap",
			slog.String("sitemap_url", req.SitemapURL),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to fetch sitemap",
		})
		return
	}

	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		urls = append(urls, entry.URL)
	}

	enqueued, err := h.storage.EnqueueURLs(c.Request.Context(), urls, domain.PriorityNormal)
	if err != nil {
		h.logger.Error("Failed to enqueue sitemap entries", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue sitemap entries",
		})
		return
	}

	if enqueued > 0 {
		h.publishWake(c.Request.Context(), "sitemap", enqueued)
	}

	c.JSON(http.StatusOK, dto.AddURLsResponse{
		Requested: len(urls),
		Enqueued:  enqueued,
		Skipped:   len(urls) - enqueued,
	})
}

// ScheduleFresh handles POST /api/v1/queue/schedule-fresh
// Claims fresh catalog candidates and enqueues their canonical URLs
func (h *QueueHandler) ScheduleFresh(c *gin.Context) {
	var req dto.ScheduleFreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	scheduled, err := h.scheduler.ScheduleFresh(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to schedule fresh candidates", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to schedule fresh candidates",
		})
		return
	}

	if scheduled > 0 {
		h.publishWake(c.Request.Context(), "schedule-fresh", scheduled)
	}

	c.JSON(http.StatusOK, gin.H{
		"scheduled": scheduled,
	})
}

// ProcessBatch handles POST /api/v1/queue/process
// Runs one claim and dispatch cycle
func (h *QueueHandler) ProcessBatch(c *gin.Context) {
	var req dto.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	result, err := h.processor.ProcessBatch(c.Request.Context(), req.Limit)
	if err != nil {
		h.logger.Error("Processing cycle failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Processing cycle failed",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ProcessResponse{
		Success:      true,
		Processed:    result.Processed,
		SuccessCount: result.SuccessCount,
		FailCount:    result.FailCount,
		RetryCount:   result.RetryCount,
		Released:     result.Released,
		QuotaStop:    result.QuotaStop,
		Message:      result.Message,
	})
}

// GetStats handles GET /api/v1/queue/stats
// Reports per-status queue counts
func (h *QueueHandler) GetStats(c *gin.Context) {
	stats, err := h.storage.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get queue stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get queue stats",
		})
		return
	}

	resp := dto.StatsResponse{
		Pending:    stats[domain.StatusPending],
		Processing: stats[domain.StatusProcessing],
		Completed:  stats[domain.StatusCompleted],
		Failed:     stats[domain.StatusFailed],
		Retry:      stats[domain.StatusRetry],
	}
	resp.Total = resp.Pending + resp.Processing + resp.Completed + resp.Failed + resp.Retry

	c.JSON(http.StatusOK, resp)
}

// ListItems handles GET /api/v1/queue/items
// Lists queue items newest first with optional status filtering
func (h *QueueHandler) ListItems(c *gin.Context) {
	var req dto.ListItemsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeItemCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.ItemFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	items, err := h.storage.ListItems(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list queue items", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list queue items",
		})
		return
	}

	hasMore := len(items) > req.PageSize
	if hasMore {
		items = items[:req.PageSize]
	}

	itemResponse := make([]dto.QueueItemDTO, len(items))
	for i, item := range items {
		itemResponse[i] = toItemDTO(item)
	}

	var nextCursor string
	if hasMore {
		lastItem := items[len(items)-1]
		nextCursor = EncodeItemCursor(&storage.ItemCursor{
			CreatedAt: lastItem.CreatedAt,
			ID:        lastItem.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListItemsResponse{
		Items:      itemResponse,
		NextCursor: nextCursor,
	})
}

// DeleteItem handles DELETE /api/v1/queue/items/:item_id
// Permanently removes a queue item (manual correction only)
func (h *QueueHandler) DeleteItem(c *gin.Context) {
	itemID := c.Param("item_id")

	if _, err := uuid.Parse(itemID); err != nil {
		h.logger.Error("Invalid item_id format",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "item_id must be a valid UUID",
		})
		return
	}

	deleted, err := h.storage.DeleteItem(c.Request.Context(), itemID)
	if err != nil {
		h.logger.Error("Failed to delete queue item", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete queue item",
		})
		return
	}

	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Queue item not found",
		})
		return
	}

	h.logger.Info("Queue item deleted", slog.String("item_id", itemID))
	c.Status(http.StatusNoContent)
}

// publishWake notifies the worker service that new work arrived. Best-effort
// only; the worker's ticker picks the work up anyway if the message is lost.
func (h *QueueHandler) publishWake(ctx context.Context, reason string, enqueued int) {
	msg := domain.WakeMessage{
		Reason:   reason,
		Enqueued: enqueued,
		SentAt:   time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal wake message", slog.String("error", err.Error()))
		return
	}

	if err := h.rabbitClient.Publish(ctx, body, "application/json"); err != nil {
		h.logger.Warn("Failed to publish wake message",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Debug("Wake message published",
		slog.String("reason", reason),
		slog.Int("enqueued", enqueued),
	)
}

// toItemDTO converts a storage row to its JSON shape
func toItemDTO(item model.QueueItem) dto.QueueItemDTO {
	out := dto.QueueItemDTO{
		ID:        item.ID,
		URL:       item.URL,
		Status:    item.Status,
		Priority:  item.Priority,
		CreatedAt: item.CreatedAt.Format(time.RFC3339),
		UpdatedAt: item.UpdatedAt.Format(time.RFC3339),
	}

	if item.PublishAttemptedAt.Valid {
		s := item.PublishAttemptedAt.Time.Format(time.RFC3339)
		out.PublishAttemptedAt = &s
	}
	if item.NextRetryAt.Valid {
		s := item.NextRetryAt.Time.Format(time.RFC3339)
		out.NextRetryAt = &s
	}
	if item.LastError.Valid {
		s := item.LastError.String
		out.LastError = &s
	}
	if item.ResponseStatus.Valid {
		v := int(item.ResponseStatus.Int32)
		out.ResponseStatus = &v
	}

	return out
}
