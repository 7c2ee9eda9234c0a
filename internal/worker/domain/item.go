package domain

import (
	"database/sql"
	"time"
)

// Queue item statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusRetry      = "retry"
)

// Queue item priorities. Priority is an ordering hint for claiming only,
// it never bypasses the quota.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// MaxErrorLength bounds the last_error text stored per item
const MaxErrorLength = 500

// QueueItem represents one URL awaiting announcement to the indexing API
type QueueItem struct {
	ID                 string         `db:"id"`
	URL                string         `db:"url"`
	Status             string         `db:"status"`
	Priority           string         `db:"priority"`
	PublishAttemptedAt sql.NullTime   `db:"publish_attempted_at"`
	NextRetryAt        sql.NullTime   `db:"next_retry_at"`
	LastError          sql.NullString `db:"last_error"`
	ResponseStatus     sql.NullInt32  `db:"response_status"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

// NewItem is the input for enqueueing a URL
type NewItem struct {
	URL      string
	Priority string
}

// WakeMessage is published to RabbitMQ after an enqueue so the worker
// service can start a processing cycle without waiting for its ticker
type WakeMessage struct {
	Reason   string    `json:"reason"`
	Enqueued int       `json:"enqueued"`
	SentAt   time.Time `json:"sent_at"`
}

// PriorityRank maps a priority to its claim ordering rank (lower first)
func PriorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// NormalizePriority maps unknown or empty priorities to normal
func NormalizePriority(priority string) string {
	switch priority {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return priority
	default:
		return PriorityNormal
	}
}

// TruncateError bounds an error message to MaxErrorLength
func TruncateError(msg string) string {
	if len(msg) > MaxErrorLength {
		return msg[:MaxErrorLength]
	}
	return msg
}
