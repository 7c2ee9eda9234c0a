package dto

// AddURLsRequest enqueues explicit URLs
type AddURLsRequest struct {
	URLs     []string `json:"urls" binding:"required,min=1"`
	Priority string   `json:"priority"`
}

// AddURLsResponse reports the enqueue outcome
type AddURLsResponse struct {
	Requested int `json:"requested"`
	Enqueued  int `json:"enqueued"`
	Skipped   int `json:"skipped"`
}

// SeedSitemapRequest seeds the queue from a sitemap document
type SeedSitemapRequest struct {
	SitemapURL string `json:"sitemap_url" binding:"required,url"`
	Limit      int    `json:"limit"`
}

// ScheduleFreshRequest schedules fresh catalog candidates
type ScheduleFreshRequest struct {
	Limit int `json:"limit"`
}

// ProcessRequest runs one claim and dispatch cycle
type ProcessRequest struct {
	Limit int `json:"limit"`
}

// ProcessResponse is the result of one processing cycle
type ProcessResponse struct {
	Success      bool   `json:"success"`
	Processed    int    `json:"processed"`
	SuccessCount int    `json:"success_count"`
	FailCount    int    `json:"fail_count"`
	RetryCount   int    `json:"retry_count"`
	Released     int    `json:"released"`
	QuotaStop    bool   `json:"quota_stop"`
	Message      string `json:"message"`
}

// ListItemsRequest filters the queue item listing
type ListItemsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListItemsResponse pages through queue items, newest first
type ListItemsResponse struct {
	Items      []QueueItemDTO `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// QueueItemDTO is the JSON shape of one queue item
type QueueItemDTO struct {
	ID                 string  `json:"id"`
	URL                string  `json:"url"`
	Status             string  `json:"status"`
	Priority           string  `json:"priority"`
	PublishAttemptedAt *string `json:"publish_attempted_at,omitempty"`
	NextRetryAt        *string `json:"next_retry_at,omitempty"`
	LastError          *string `json:"last_error,omitempty"`
	ResponseStatus     *int    `json:"response_status,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// StatsResponse reports per-status queue counts
type StatsResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Retry      int `json:"retry"`
	Total      int `json:"total"`
}
